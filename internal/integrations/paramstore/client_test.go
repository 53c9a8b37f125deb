package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out *ssm.GetParameterOutput
	err error
	in  *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestNew_ValidatesAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetParameter(t *testing.T) {
	value := "secret-value"
	api := &fakeSSM{out: &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: &value},
	}}
	c, err := New(api)
	require.NoError(t, err)

	got, err := c.GetParameter(context.Background(), "/prefix/platform-api-token")
	require.NoError(t, err)
	require.Equal(t, "secret-value", got)
	require.Equal(t, "/prefix/platform-api-token", *api.in.Name)
	require.True(t, *api.in.WithDecryption)
}

func TestGetParameter_EmptyName(t *testing.T) {
	c, err := New(&fakeSSM{})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "  ")
	require.Error(t, err)
}

func TestGetParameter_PropagatesError(t *testing.T) {
	c, err := New(&fakeSSM{err: errors.New("throttled")})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "/prefix/key")
	require.Error(t, err)
}

func TestGetParameter_MissingValue(t *testing.T) {
	c, err := New(&fakeSSM{out: &ssm.GetParameterOutput{}})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "/prefix/key")
	require.Error(t, err)
}
