package saml

import "encoding/base64"

// Base64Encode/Base64Decode carry no cryptographic policy, unlike the
// rest of the XmlSecurityProvider surface, so they're free functions
// rather than provider methods — every binding file gets the whole
// wire-encoding toolkit from this one package without threading a
// provider value through for something this trivial.
func Base64Encode(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

func Base64Decode(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, NewBindingError(BindingMalformed, "decoding base64", err)
	}
	return data, nil
}
