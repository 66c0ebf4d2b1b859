package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/federate-go/saml"
)

// vetCmd parses a metadata document — local file or URL — and reports
// every entity it finds along with its IDPSSO and SPSSO roles and the
// endpoint bindings they advertise, the same "parse, then tell the
// operator what's in it" shape as the teacher's serviceProvider
// command. Other role kinds are not printed.
var vetCmd = &cobra.Command{
	Use:   "vet metadata",
	Short: "parse and summarize a SAML metadata document",
	Long:  `Parses a metadata file or URL and prints every entity it contains, with its IDPSSO and SPSSO roles and their advertised endpoint bindings. Other role kinds are not printed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := getReader(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		entities, err := saml.ParseEntitiesMetadata(data)
		if err != nil {
			return err
		}

		printEntities(entities, 0)
		return nil
	},
}

func printEntities(entities *saml.EntitiesDescriptor, depth int) {
	for i := range entities.EntitiesDescriptors {
		printEntities(&entities.EntitiesDescriptors[i], depth+1)
	}
	for _, e := range entities.EntityDescriptors {
		fmt.Fprintf(out, "entity %s\n", e.EntityID)
		for _, idp := range e.IDPSSODescriptors {
			fmt.Fprintf(out, "  IDPSSODescriptor protocols=%q\n", idp.ProtocolSupportEnumeration)
			for _, ep := range idp.SingleSignOnServices {
				fmt.Fprintf(out, "    SingleSignOnService binding=%s location=%s\n", ep.Binding, ep.Location)
			}
			for _, ep := range idp.ArtifactResolutionServices {
				fmt.Fprintf(out, "    ArtifactResolutionService binding=%s location=%s index=%d\n", ep.Binding, ep.Location, ep.Index)
			}
		}
		for _, sp := range e.SPSSODescriptors {
			fmt.Fprintf(out, "  SPSSODescriptor protocols=%q\n", sp.ProtocolSupportEnumeration)
			for _, ep := range sp.AssertionConsumerServices {
				fmt.Fprintf(out, "    AssertionConsumerService binding=%s location=%s index=%d\n", ep.Binding, ep.Location, ep.Index)
			}
		}
	}
}

func getReader(fileOrURL string) (io.ReadCloser, error) {
	u, err := url.Parse(fileOrURL)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		resp, err := http.Get(fileOrURL) //nolint:gosec // operator-supplied metadata URL, analogous to a config-file path.
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d fetching metadata", resp.StatusCode)
		}
		return resp.Body, nil
	}
	return os.Open(fileOrURL)
}

func init() {
	rootCmd.AddCommand(vetCmd)
}
