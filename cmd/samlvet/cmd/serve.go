package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/zenazn/goji"
	"github.com/zenazn/goji/web"

	"github.com/federate-go/saml"
	"github.com/federate-go/saml/binding"
	"github.com/federate-go/saml/registry"
)

var serveEntityID string

// serveCmd stands up a throwaway goji-routed HTTP server whose
// /saml/bindings route lists the binding registry's installed IDs as
// plain text, useful for smoke-testing which bindings a given samlvet
// build wires in. It serves no metadata document.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve a plain-text list of the bindings in the binding registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New()
		binding.RegisterDefaults(reg)
		binding.RegisterArtifactBinding(reg, saml.NewArtifactMap())

		mux := web.New()
		mux.Get("/saml/bindings", bindingsHandler(reg))

		goji.Handle("/*", mux)
		goji.Serve()
		return nil
	},
}

func bindingsHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for _, id := range reg.IDs() {
			fmt.Fprintln(w, id)
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveEntityID, "entity-id", "", "entity ID of this host (not used by the /saml/bindings listing)")
	rootCmd.AddCommand(serveCmd)
}
