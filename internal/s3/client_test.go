package s3

import (
	"errors"
	"testing"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

func TestClassifyError_MapsNoSuchKeyToObjectNotFound(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "NoSuchKey", Message: "the key does not exist"}

	err := classifyError("get_object", apiErr)
	require.Error(t, err)
	require.True(t, qferrors.Is(err, qferrors.KindNetwork))
	require.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestClassifyError_WrapsOtherErrorsAsNetwork(t *testing.T) {
	err := classifyError("put_object", errors.New("connection reset"))
	require.Error(t, err)
	require.True(t, qferrors.Is(err, qferrors.KindNetwork))
	require.False(t, errors.Is(err, ErrObjectNotFound))
}

func TestClassifyError_NilIsNil(t *testing.T) {
	require.NoError(t, classifyError("noop", nil))
}
