package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/game"
)

func TestDecode_RoundTrip(t *testing.T) {
	cells := []game.Cell{
		game.MarkerA, game.Empty, game.Empty,
		game.Empty, game.MarkerB, game.Empty,
		game.Empty, game.Empty, game.Empty,
	}

	events := []*Event{
		NewMessage("waiting for the other player to join"),
		NewBoard(cells),
		NewAskMove("alice"),
		NewMove(5, "alice"),
		NewResult(cells, Outcome{Victory: true, Winner: "alice", Coordinates: [][2]int{{0, 0}, {1, 1}, {2, 2}}}, "alice wins the game!"),
		NewQuit(),
		NewRoomStatus("playing", []string{"alice", "bob"}, "bob", ""),
		NewRematchVote(map[string]bool{"alice": true}, false),
		NewRematchBallot(true),
	}

	for _, original := range events {
		// When: the event is encoded and decoded again
		raw, err := original.Encode()
		require.NoError(t, err)

		decoded, err := Decode(raw)

		// Then: the envelope survives the round trip
		require.NoError(t, err, "kind %s", original.Kind)
		assert.Equal(t, original.Kind, decoded.Kind)
		assert.JSONEq(t, string(original.Data), string(decoded.Data))
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `move it`},
		{"missing kind", `{"data": {"position": 1, "marker": "alice"}}`},
		{"missing data", `{"kind": "move"}`},
		{"unknown kind", `{"kind": "teleport", "data": {}}`},
		{"move without marker", `{"kind": "move", "data": {"position": 4}}`},
		{"board without cells", `{"kind": "board", "data": {}}`},
		{"ask_move without player", `{"kind": "ask_move", "data": {}}`},
		{"room_status without status", `{"kind": "room_status", "data": {"players": []}}`},
		{"rematch_vote without any vote", `{"kind": "rematch_vote", "data": {}}`},
		{"payload of the wrong shape", `{"kind": "move", "data": {"position": "five", "marker": "alice"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))

			require.ErrorIs(t, err, apperror.ErrMalformedEvent)
		})
	}
}

func TestEvent_TypedAccessors(t *testing.T) {
	t.Run("Move payload", func(t *testing.T) {
		ev, err := Decode([]byte(`{"kind": "move", "data": {"position": 7, "marker": "bob"}}`))
		require.NoError(t, err)

		move, err := ev.Move()

		require.NoError(t, err)
		assert.Equal(t, 7, move.Position)
		assert.Equal(t, "bob", move.Marker)
	})

	t.Run("Accessor on the wrong kind fails", func(t *testing.T) {
		ev := NewQuit()

		_, err := ev.Move()

		require.ErrorIs(t, err, apperror.ErrUnexpectedKind)
	})

	t.Run("Rematch ballot carries the vote", func(t *testing.T) {
		ev, err := Decode([]byte(`{"kind": "rematch_vote", "data": {"vote": false}}`))
		require.NoError(t, err)

		vote, err := ev.RematchVote()

		require.NoError(t, err)
		require.NotNil(t, vote.Vote)
		assert.False(t, *vote.Vote)
	})
}

func TestNewOutcome(t *testing.T) {
	result := game.WinResult{
		Victory: true,
		Winner:  game.MarkerA,
		Coordinates: []game.Coordinate{
			{Row: 0, Col: 0}, {Row: 1, Col: 1}, {Row: 2, Col: 2},
		},
	}

	outcome := NewOutcome(result, "alice")

	assert.True(t, outcome.Victory)
	assert.Equal(t, "alice", outcome.Winner)
	assert.Equal(t, [][2]int{{0, 0}, {1, 1}, {2, 2}}, outcome.Coordinates)
}
