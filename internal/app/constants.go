package app

const (
	// MaxPlayersPerTeam covers the 1v1 and 2v2 formats.
	MaxPlayersPerTeam = 2
	// TricksPerHand is the most tricks a hand can last.
	TricksPerHand = 3
	// TricksToWinHand is the majority that ends a hand early.
	TricksToWinHand = 2
)
