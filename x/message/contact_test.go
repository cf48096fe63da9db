package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactPrefix = "CONTACT;01;0195238E15AD;AB;U;FALSE;;C1;FALSE;"

func TestContact_NoPositionIsSevere(t *testing.T) {
	t.Parallel()

	m, diags, err := Decode(contactPrefix + ";;;;;")
	require.NoError(t, err)

	c := m.(Contact)
	assert.Nil(t, c.Latitude)
	assert.Nil(t, c.Longitude)
	assert.Nil(t, c.RelativeX)
	assert.False(t, c.HasAbsolutePosition())
	assert.False(t, c.HasRelativePosition())

	pos := diags.ForField("Position")
	require.Len(t, pos, 1)
	assert.Equal(t, LevelSevere, pos[0].Level)
	assert.Contains(t, pos[0].Message, "Neither valid Lat/Lon nor relative position information")
}

func TestContact_AbsolutePositionWins(t *testing.T) {
	t.Parallel()

	m, diags, err := Decode(contactPrefix + "53.0;8.0;;10.0;20.0;0.0")
	require.NoError(t, err)

	c := m.(Contact)
	require.True(t, c.HasAbsolutePosition())
	assert.Equal(t, 53.0, *c.Latitude)
	assert.Nil(t, c.RelativeX)
	assert.Nil(t, c.RelativeY)
	assert.Nil(t, c.RelativeZ)

	pos := diags.ForField("Position")
	require.Len(t, pos, 1)
	assert.Equal(t, LevelInfo, pos[0].Level)
	assert.Contains(t, pos[0].Message, "relative positions will be ignored")
	assert.False(t, diags.HasSevere())
}

func TestContact_RelativeWithPartialLatLon(t *testing.T) {
	t.Parallel()

	m, diags, err := Decode(contactPrefix + "53.0;;;10.0;20.0;0.0")
	require.NoError(t, err)

	c := m.(Contact)
	assert.Nil(t, c.Latitude)
	require.True(t, c.HasRelativePosition())
	assert.Equal(t, 20.0, *c.RelativeY)
	assert.Equal(t, LevelInfo, diags.ForField("Position").Max())
}

func TestContact_Normalize(t *testing.T) {
	t.Parallel()

	c := NewContact(testHeader(), "C9", 1, 2)
	c.RelativeX, c.RelativeY, c.RelativeZ = Ptr(1.0), Ptr(2.0), Ptr(3.0)

	n, diags := Normalize(c)
	assert.Nil(t, n.(Contact).RelativeX)
	assert.Equal(t, LevelInfo, diags.ForField("Position").Max())
}

func TestContact_SourceCodes(t *testing.T) {
	t.Parallel()

	m, _, err := Decode(contactPrefix + "1.0;2.0;;;;;;;;;;;;;Name;RZI")
	require.NoError(t, err)
	assert.Equal(t, []Source{SourceRadar, SourceNone, SourceIFF}, m.(Contact).Source)
	assert.Equal(t, "None", SourceNone.String())
}

func TestContact_IdentifierPatterns(t *testing.T) {
	t.Parallel()

	m, diags, err := Decode(contactPrefix + "1.0;2.0;;;;;;;;;;;;;;;;12345678901;ZZZZZZ")
	require.NoError(t, err)

	c := m.(Contact)
	assert.Empty(t, c.MMSI)
	assert.Empty(t, c.ICAO)
	assert.Equal(t, LevelWarning, diags.ForField("MMSI").Max())
	assert.Equal(t, LevelWarning, diags.ForField("ICAO").Max())
}

func TestContact_LargeMultimediaWarnsButKeepsData(t *testing.T) {
	t.Parallel()

	c := NewContact(testHeader(), "C1", 1, 2)
	c.Multimedia = []byte(strings.Repeat("x", MaxMultimediaSize+1))

	got, diags, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Len(t, got.(Contact).Multimedia, MaxMultimediaSize+1)
	assert.Equal(t, LevelWarning, diags.ForField("MultimediaData").Max())
}

func TestContact_BadCommentIsSevere(t *testing.T) {
	t.Parallel()

	m, diags, err := Decode(contactPrefix + "1.0;2.0;;;;;;;;;;;;;;;;;;;!!!")
	require.NoError(t, err)
	assert.Empty(t, m.(Contact).Comment)
	assert.Equal(t, LevelSevere, diags.ForField("Comment").Max())
}
