package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHarvestRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    HarvestRef
		wantErr bool
	}{
		{name: "digits", raw: "42", want: HarvestRef{ID: 42}},
		{name: "uuid", raw: "3F2504E0-4F89-41D3-9A0C-0305E82C3301", want: HarvestRef{UUID: "3f2504e0-4f89-41d3-9a0c-0305e82c3301"}},
		{name: "garbage", raw: "abc", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "negative", raw: "-1", wantErr: true},
		{name: "overflow", raw: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseHarvestRef(tt.raw)
			if tt.wantErr {
				var ve *ValidationError
				require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
