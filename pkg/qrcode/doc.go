// Package qrcode renders provisioning URIs as PNG QR codes, either as raw bytes or
// as a data URI that a client can drop straight into an <img> tag.
//
// It is a thin wrapper around github.com/skip2/go-qrcode:
//
//	r := qrcode.NewRenderer(qrcode.WithSize(256))
//	dataURI, err := r.DataURI("otpauth://totp/Acme:alice?secret=...")
package qrcode
