package puzzle

import "encoding/json"

// Cell is one square of the placeholder board.
type Cell struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Answer string `json:"answer"`
	Number int    `json:"number,omitempty"`
}

// Clue is one numbered clue.
type Clue struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Meta carries the publication details of a placeholder.
type Meta struct {
	PublishedAt string `json:"publishedAt"`
	Title       string `json:"title"`
}

// Board holds the placeholder cells.
type Board struct {
	Cells []Cell `json:"cells"`
}

// Clues groups clues by direction.
type Clues struct {
	Across []Clue `json:"across"`
	Down   []Clue `json:"down"`
}

// PlaceholderPuzzle is the fixed demo shape served under the placeholder
// failure policy. It is not a complete puzzle.
type PlaceholderPuzzle struct {
	Meta  Meta  `json:"meta"`
	Board Board `json:"board"`
	Clues Clues `json:"clues"`
}

// Placeholder returns the demo puzzle stamped with the given date.
func Placeholder(key DateKey) PlaceholderPuzzle {
	return PlaceholderPuzzle{
		Meta: Meta{
			PublishedAt: key.String(),
			Title:       "Mini Crossword - Demo",
		},
		Board: Board{Cells: []Cell{
			{X: 0, Y: 0, Answer: "P", Number: 1},
			{X: 1, Y: 0, Answer: "I"},
			{X: 2, Y: 0, Answer: "A"},
			{X: 3, Y: 0, Answer: "N"},
			{X: 4, Y: 0, Answer: "O"},
		}},
		Clues: Clues{
			Across: []Clue{
				{Number: 1, Text: "Musical keyboard instrument"},
				{Number: 6, Text: "Taken ___"},
			},
			Down: []Clue{
				{Number: 1, Text: "Parking areas"},
				{Number: 2, Text: "Not in favor of"},
			},
		},
	}
}

// PlaceholderDocument renders Placeholder as a Document.
func PlaceholderDocument(key DateKey) (Document, error) {
	raw, err := json.Marshal(Placeholder(key))
	if err != nil {
		return nil, err
	}
	return Document(raw), nil
}
