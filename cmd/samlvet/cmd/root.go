package cmd

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var out io.Writer = os.Stdout // redirected during testing

// rootCmd is the base command when samlvet is called without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "samlvet",
	Short: "Inspect SAML metadata and exercise the binding registry",
}

// Execute adds every subcommand to rootCmd and runs it. Called once
// from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalln(err)
	}
}

func init() {
	log.SetReportCaller(true)
}
