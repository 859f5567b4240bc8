package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelease_EmptySignatureList(t *testing.T) {
	r := NewRelease()
	require.NotNil(t, r.RequestedSignatures)
	assert.Empty(t, r.RequestedSignatures)
}

func TestRelease_Clone(t *testing.T) {
	a := &SignatureRequest{SignatureRequestID: "a"}
	orig := &Release{
		Title:               "t",
		SenderInfo:          &SenderInfo{EmailAddress: "s@x.com", Name: "S"},
		RequestedSignatures: []*SignatureRequest{a},
	}

	c := orig.Clone()
	c.RequestedSignatures[0] = &SignatureRequest{SignatureRequestID: "b"}
	c.SenderInfo.Name = "changed"

	assert.Equal(t, "a", orig.RequestedSignatures[0].SignatureRequestID)
	assert.Equal(t, "S", orig.SenderInfo.Name)
	assert.Nil(t, (*Release)(nil).Clone())
}

func TestRelease_FindSignatureRequest(t *testing.T) {
	r := &Release{RequestedSignatures: []*SignatureRequest{
		{SignatureRequestID: "a"}, nil, {SignatureRequestID: "c"},
	}}

	assert.Equal(t, 0, r.FindSignatureRequest("a"))
	assert.Equal(t, 2, r.FindSignatureRequest("c"))
	assert.Equal(t, -1, r.FindSignatureRequest("z"))
}
