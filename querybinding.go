package schematron

import (
	"github.com/jacoelho/schematron/errors"
)

// Query language versions selecting a stage pipeline.
const (
	Version1 = "1.0"
	Version2 = "2.0"
)

var queryBindings = map[string]string{
	"":      Version1,
	"xslt":  Version1,
	"xslt2": Version2,
	"xslt3": Version2,
}

// QueryBindingVersion maps a queryBinding attribute value to the pipeline
// version that compiles it.
func QueryBindingVersion(binding string) (string, error) {
	v, ok := queryBindings[binding]
	if !ok {
		return "", errors.Configuration(errors.ErrUnknownQueryBinding, "unknown query binding %q", binding)
	}
	return v, nil
}
