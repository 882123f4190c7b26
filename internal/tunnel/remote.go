package tunnel

import (
	stderrors "errors"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
)

// remoteError wraps an SDK error as a RemoteError whose message names the
// AWS error code and HTTP status when the SDK exposes them.
func remoteError(op string, err error) error {
	detail := describeRemote(err)
	if detail == "" {
		return errors.RemoteError(op, err)
	}
	return errors.RemoteError(fmt.Sprintf("%s (%s)", op, detail), err)
}

// describeRemote extracts "code X, HTTP N" from an SDK error chain.
func describeRemote(err error) string {
	var (
		code   string
		status int
	)

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	switch {
	case code != "" && status != 0:
		return fmt.Sprintf("%s, HTTP %d", code, status)
	case code != "":
		return code
	case status != 0:
		return fmt.Sprintf("HTTP %d", status)
	}
	return ""
}

// IsNotFound reports whether err is the control plane's ResourceNotFoundException.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	return stderrors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}
