package nodeid

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestIDString(t *testing.T) {
	assert.Equal(t, "code_0800", New(Code, 0x0800).String())
	assert.Equal(t, "data_c0ff", New(Data, 0xC0FF).String())
	assert.Equal(t, "code_0000", New(Code, 0).String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected ID
		err      string
	}{
		{input: "code_0800", expected: ID{Kind: Code, Address: 0x0800}},
		{input: "data_fffe", expected: ID{Kind: Data, Address: 0xFFFE}},
		{input: "code0800", err: "missing separator"},
		{input: "irq_0800", err: "unsupported kind"},
		{input: "code_800", err: "4 hex digits"},
		{input: "code_zzzz", err: "invalid node id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := Parse(tt.input)
			if tt.err != "" {
				assert.ErrorContains(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, id)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected uint16
		wantErr  bool
	}{
		{input: "$0800", expected: 0x0800},
		{input: "0x0801", expected: 0x0801},
		{input: "0XC000", expected: 0xC000},
		{input: "d020", expected: 0xD020},
		{input: " $ffff ", expected: 0xFFFF},
		{input: "$", wantErr: true},
		{input: "10000", wantErr: true},
		{input: "$g000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			address, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, address)
		})
	}
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "$D020", FormatAddress(0xD020))
}

func TestParseEndAddress(t *testing.T) {
	end, err := ParseEndAddress("$10000")
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x10000), end)

	end, err = ParseEndAddress("0x0900")
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x0900), end)

	_, err = ParseEndAddress("$10001")
	assert.ErrorContains(t, err, "exceeds $10000")
}
