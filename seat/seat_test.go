package seat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFree(t *testing.T) {
	tests := []struct {
		name     string
		occupied []Seat
		want     Seat
		wantOK   bool
	}{
		{name: "empty table", occupied: nil, want: Ton, wantOK: true},
		{name: "host seated", occupied: []Seat{Ton}, want: Nan, wantOK: true},
		{name: "gap is filled first", occupied: []Seat{Ton, Sya}, want: Nan, wantOK: true},
		{name: "only north left", occupied: []Seat{Sya, Ton, Nan}, want: Pei, wantOK: true},
		{name: "full", occupied: []Seat{Ton, Nan, Sya, Pei}, wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextFree(tc.occupied)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestAtAndIndex(t *testing.T) {
	for i := 0; i < Count; i++ {
		s, err := At(i)
		require.NoError(t, err)
		assert.Equal(t, i, s.Index())
		assert.True(t, s.Valid())
	}

	_, err := At(Count)
	assert.Error(t, err)
	assert.Equal(t, -1, Seat("center").Index())
	assert.False(t, Seat("").Valid())
}
