package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// no pdfcpu config directory in the user's home
	model.ConfigPath = "disable"
}

func pdfcpuConfig(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.UserPW = password
	conf.OwnerPW = password
	return conf
}

// decrypt inspects data with pdfcpu and returns plain PDF bytes. Inspection
// failures that are not about passwords are left for the text library to
// judge; pdfcpu is stricter than it.
func decrypt(data []byte, password string) ([]byte, error) {
	conf := pdfcpuConfig(password)
	if _, err := api.PDFInfo(bytes.NewReader(data), "statement.pdf", nil, conf); err != nil {
		if isPasswordError(err) {
			return nil, passwordError(password, err)
		}
		return data, nil
	}
	if !bytes.Contains(data, []byte("/Encrypt")) {
		return data, nil
	}

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, pdfcpuConfig(password)); err != nil {
		if isPasswordError(err) {
			return nil, passwordError(password, err)
		}
		if strings.Contains(strings.ToLower(err.Error()), "not encrypted") {
			return data, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return out.Bytes(), nil
}

// isPasswordError inspects a backend message for password or encryption
// trouble.
func isPasswordError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"password", "encrypt", "decrypt"} {
		if strings.Contains(msg, kw) && !strings.Contains(msg, "not encrypted") {
			return true
		}
	}
	return false
}

func passwordError(password string, cause error) error {
	if password == "" {
		return fmt.Errorf("%w: %v", ErrPasswordRequired, cause)
	}
	return fmt.Errorf("%w: %v", ErrPasswordIncorrect, cause)
}
