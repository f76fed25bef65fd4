package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStrategy struct {
	name string
	fn   func(ctx context.Context) ([]byte, error)
}

func (f fakeStrategy) Name() string                              { return f.name }
func (f fakeStrategy) Capture(ctx context.Context) ([]byte, error) { return f.fn(ctx) }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestChainFallsBackOnFailure(t *testing.T) {
	want := pngBytes(t)
	b := NewBackend(zaptest.NewLogger(t).Sugar(), time.Second,
		fakeStrategy{name: "first", fn: func(context.Context) ([]byte, error) {
			return nil, errors.New("session bus unavailable")
		}},
		fakeStrategy{name: "second", fn: func(context.Context) ([]byte, error) {
			return want, nil
		}},
	)

	got, err := b.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestChainSkipsUndecodableOutput(t *testing.T) {
	want := pngBytes(t)
	b := NewBackend(zaptest.NewLogger(t).Sugar(), time.Second,
		fakeStrategy{name: "garbage", fn: func(context.Context) ([]byte, error) {
			return []byte("not a png"), nil
		}},
		fakeStrategy{name: "good", fn: func(context.Context) ([]byte, error) {
			return want, nil
		}},
	)

	got, err := b.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestChainErrorCarriesEveryReason(t *testing.T) {
	b := NewBackend(zaptest.NewLogger(t).Sugar(), time.Second,
		fakeStrategy{name: "dbus", fn: func(context.Context) ([]byte, error) {
			return nil, errors.New("no session bus")
		}},
		fakeStrategy{name: "grim", fn: func(context.Context) ([]byte, error) {
			return nil, errors.New("not installed")
		}},
	)

	_, err := b.Capture(context.Background())
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Len(t, chainErr.Failures, 2)
	assert.Equal(t, "dbus", chainErr.Failures[0].Strategy)
	assert.Equal(t, "grim", chainErr.Failures[1].Strategy)
	assert.Contains(t, err.Error(), "no session bus")
	assert.Contains(t, err.Error(), "not installed")
}

func TestPerStrategyTimeout(t *testing.T) {
	want := pngBytes(t)
	b := NewBackend(zaptest.NewLogger(t).Sugar(), 20*time.Millisecond,
		fakeStrategy{name: "hung", fn: func(ctx context.Context) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		fakeStrategy{name: "fast", fn: func(context.Context) ([]byte, error) {
			return want, nil
		}},
	)

	start := time.Now()
	got, err := b.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Less(t, time.Since(start), time.Second, "hung strategy must be cut off by its own timeout")
}

func TestChainStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	b := NewBackend(zaptest.NewLogger(t).Sugar(), time.Second,
		fakeStrategy{name: "any", fn: func(context.Context) ([]byte, error) {
			called = true
			return pngBytes(t), nil
		}},
	)

	_, err := b.Capture(ctx)
	require.Error(t, err)
	assert.False(t, called)

	// The failure is charged to the chain, not to a strategy that was
	// never attempted.
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Len(t, chainErr.Failures, 1)
	assert.Equal(t, "chain", chainErr.Failures[0].Strategy)
}

func TestToolMissingBinary(t *testing.T) {
	tool := Tool{Binary: "sahayak-no-such-screenshotter"}
	_, err := tool.Capture(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")
}

func TestToolWritesAndCleansTempFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "shot.png")
	want := pngBytes(t)
	require.NoError(t, os.WriteFile(src, want, 0o600))

	// sh -c runs with the output path bound to $0; the script copies the
	// prepared PNG there, standing in for a real screenshot utility.
	tool := Tool{Binary: "sh", Args: []string{"-c", `cat "` + src + `" > "$0"`}}
	got, err := tool.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	leftovers, err := filepath.Glob(filepath.Join(os.TempDir(), "sahayak-shot-*.png"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp file must be removed after capture")
}

func TestToolRemovesTempFileOnFailure(t *testing.T) {
	tool := Tool{Binary: "sh", Args: []string{"-c", "exit 3"}}
	_, err := tool.Capture(context.Background())
	require.Error(t, err)

	leftovers, globErr := filepath.Glob(filepath.Join(os.TempDir(), "sahayak-shot-*.png"))
	require.NoError(t, globErr)
	assert.Empty(t, leftovers)
}
