package chat

import (
	"errors"
	"fmt"
)

// ErrSummarizationFailed is logged when history summarization gives up after
// all retries. It never reaches the caller of Send.
var ErrSummarizationFailed = errors.New("summarization failed")

var errEmptyPrompt = errors.New("prompt and attachments are both empty")

// UploadError reports one attachment that could not be stored. The turn
// continues without its URL.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
