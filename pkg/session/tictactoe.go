package session

import (
	"strings"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Mark is the content of a board cell.
type Mark byte

const (
	Empty Mark = 0
	MarkX Mark = 'X'
	MarkO Mark = 'O'
)

func (m Mark) String() string {
	if m == Empty {
		return "-"
	}
	return string(m)
}

// Board is a 3x3 grid in row-major order.
type Board [9]Mark

// Cells names the board positions in index order: columns a-c, rows 1-3.
var Cells = [9]string{
	"a1", "b1", "c1",
	"a2", "b2", "c2",
	"a3", "b3", "c3",
}

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// CellIndex converts a coordinate like "b2" to a board index.
func CellIndex(coord string) (int, bool) {
	coord = strings.ToLower(strings.TrimSpace(coord))
	for i, c := range Cells {
		if c == coord {
			return i, true
		}
	}
	return -1, false
}

// Winner returns the mark owning a complete line, or Empty.
func (b Board) Winner() Mark {
	for _, l := range winLines {
		if b[l[0]] != Empty && b[l[0]] == b[l[1]] && b[l[1]] == b[l[2]] {
			return b[l[0]]
		}
	}
	return Empty
}

// Full reports whether every cell is taken.
func (b Board) Full() bool {
	for _, m := range b {
		if m == Empty {
			return false
		}
	}
	return true
}

// Render draws the board under a title line.
func (b Board) Render(title string) string {
	var sb strings.Builder
	sb.WriteString("+-----------+\n")
	sb.WriteString(" " + title + "\n")
	sb.WriteString("+-----------+\n")
	sb.WriteString("    A B C\n")
	for row := 0; row < 3; row++ {
		if row > 0 {
			sb.WriteString("    -+-+-\n")
		}
		sb.WriteString("  ")
		sb.WriteByte(byte('1' + row))
		sb.WriteString(" ")
		for col := 0; col < 3; col++ {
			if col > 0 {
				sb.WriteString("|")
			}
			sb.WriteString(b[row*3+col].String())
		}
		sb.WriteString("\n")
	}
	sb.WriteString("+-----------+")
	return sb.String()
}

// TicTacToe is a sequential two-player game. The first mover plays X.
type TicTacToe struct{}

func (TicTacToe) Name() string        { return "tictactoe" }
func (TicTacToe) Title() string       { return "Tic Tac Toe" }
func (TicTacToe) Players() (int, int) { return 2, 2 }
func (TicTacToe) Sequential() bool    { return true }

// Setup shuffles the turn order and hands out marks.
func (TicTacToe) Setup(t *Table, intn func(int) int) {
	order := append([]Participant(nil), t.Participants...)
	for i := len(order) - 1; i > 0; i-- {
		j := intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	t.TurnOrder = order
	t.Board = Board{}
	t.Marks = map[gamedb.DBRef]Mark{
		order[0].Ref: MarkX,
		order[1].Ref: MarkO,
	}
}

func (TicTacToe) ActionVerbs() []string {
	return append([]string(nil), Cells[:]...)
}

func (TicTacToe) Normalize(input string) (string, bool) {
	i, ok := CellIndex(input)
	if !ok {
		return "", false
	}
	return Cells[i], true
}

func (TicTacToe) Options(t *Table, p Participant) []string {
	if len(t.TurnOrder) == 0 || t.TurnOrder[0].Ref != p.Ref {
		return nil
	}
	var free []string
	for i, m := range t.Board {
		if m == Empty {
			free = append(free, Cells[i])
		}
	}
	return free
}

func (TicTacToe) Validate(t *Table, p Participant, move string) error {
	if len(t.TurnOrder) == 0 || t.TurnOrder[0].Ref != p.Ref {
		return ErrNotYourTurn
	}
	i, ok := CellIndex(move)
	if !ok {
		return ErrIllegalMove
	}
	if t.Board[i] != Empty {
		return ErrIllegalMove
	}
	return nil
}

// Apply marks the cell and passes the turn.
func (TicTacToe) Apply(t *Table, p Participant, move string) {
	i, _ := CellIndex(move)
	t.Board[i] = t.Marks[p.Ref]
	t.TurnOrder = append(t.TurnOrder[1:], t.TurnOrder[0])
}

// Resolve looks for a completed line, then a full board.
func (TicTacToe) Resolve(t *Table) (Outcome, bool) {
	if w := t.Board.Winner(); w != Empty {
		var o Outcome
		o.Kind = OutcomeWin
		for _, p := range t.Participants {
			if t.Marks[p.Ref] == w {
				o.Winners = append(o.Winners, p)
			} else {
				o.Losers = append(o.Losers, p)
			}
		}
		return o, true
	}
	if t.Board.Full() {
		return Outcome{Kind: OutcomeDraw}, true
	}
	return Outcome{}, false
}

func (TicTacToe) Prompt(t *Table, p Participant) string {
	title := "OPP. TURN"
	if len(t.TurnOrder) > 0 && t.TurnOrder[0].Ref == p.Ref {
		title = "YOUR TURN"
	}
	return t.Board.Render(title)
}
