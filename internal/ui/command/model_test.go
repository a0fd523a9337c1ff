package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    CommandMsg
		wantErr bool
	}{
		{input: "refresh", want: CommandMsg{Name: Refresh}},
		{input: "  SYNC ", want: CommandMsg{Name: Refresh}},
		{input: "readall", want: CommandMsg{Name: ReadAll}},
		{input: "sound off", want: CommandMsg{Name: Sound, Arg: "off"}},
		{input: "mute", want: CommandMsg{Name: Sound}},
		{input: "vol 0.4", want: CommandMsg{Name: Volume, Arg: "0.4", Volume: 0.4}},
		{input: "q", want: CommandMsg{Name: Quit}},
		{input: "", wantErr: true},
		{input: "dance", wantErr: true},
		{input: "volume loud", wantErr: true},
		{input: "volume 1.5", wantErr: true},
		{input: "sound maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnterEmitsCommandOrShowsError(t *testing.T) {
	m := New(80, 24)
	m.Focus()

	m.input.SetValue("nonsense")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "unknown command")

	m.input.SetValue("logout")
	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: Logout}, cmd())
	assert.Empty(t, m.input.Value())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())
}
