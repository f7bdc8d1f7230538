package classifier

import "errors"

// Sentinel kinds for classifier errors.
var (
	ErrClassification = errors.New("mri classification failed")
	ErrUnknownLabel   = errors.New("classifier returned an unknown label")
	ErrEmptyImage     = errors.New("image is empty")
)
