package main

import (
	"github.com/pkg/errors"
)

// flattenErrors joins the non-nil errors into one. A single non-nil error is returned as is, so errors.Is
// keeps working on it.
func flattenErrors(errs ...error) error {
	var finalErr error
	for _, err := range errs {
		if err == nil {
			continue
		}

		if finalErr != nil {
			finalErr = errors.Errorf("%v, %v", finalErr, err)
		} else {
			finalErr = err
		}
	}
	return finalErr
}
