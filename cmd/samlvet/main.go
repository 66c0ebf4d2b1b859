package main

import "github.com/federate-go/saml/cmd/samlvet/cmd"

func main() {
	cmd.Execute()
}
