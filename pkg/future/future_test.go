package future

import (
	"context"
	"errors"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestFuture_Complete(t *testing.T) {
	f := New[int]()
	require.False(t, f.IsDone())

	require.True(t, f.Complete(7))
	require.True(t, f.IsDone())

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestFuture_FirstResolutionWins(t *testing.T) {
	f := New[string]()

	require.True(t, f.Fail(errors.New("boom")))
	require.False(t, f.Complete("late"))
	require.False(t, f.Fail(errors.New("later")))

	v, err := f.Wait()
	require.EqualError(t, err, "boom")
	require.Equal(t, "", v)
	require.EqualError(t, f.Err(), "boom")
}

func TestFuture_GetHonoursContext(t *testing.T) {
	f := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, f.IsDone())
	require.NoError(t, f.Err())
}

func TestFuture_DoneUnblocksWaiters(t *testing.T) {
	f := New[int]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.Complete(1)
	}()

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Done")
	}
}

func TestFuture_Run(t *testing.T) {
	tests := []struct {
		name    string
		fn      func() (int, error)
		want    int
		wantErr error
	}{
		{
			name: "value",
			fn:   func() (int, error) { return 3, nil },
			want: 3,
		},
		{
			name:    "error",
			fn:      func() (int, error) { return 0, context.Canceled },
			wantErr: context.Canceled,
		},
		{
			name:    "panic",
			fn:      func() (int, error) { panic("bad") },
			wantErr: ErrTaskPanicked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New[int]()
			f.Run(tt.fn)

			require.True(t, f.IsDone())
			v, err := f.Wait()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, v)
		})
	}
}
