package tablebase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hailam/chesscore/internal/board"
)

// DefaultLichessURL is the public Lichess tablebase endpoint.
const DefaultLichessURL = "https://tablebase.lichess.ovh/standard"

// LichessProber uses the Lichess tablebase API for online lookups.
// It requires network access and is rate limited, so wrap it in a CachedProber.
type LichessProber struct {
	client    *http.Client
	baseURL   string
	maxPieces int
}

// NewLichessProber creates a prober querying baseURL, or the public
// endpoint when baseURL is empty.
func NewLichessProber(baseURL string) *LichessProber {
	if baseURL == "" {
		baseURL = DefaultLichessURL
	}
	return &LichessProber{
		client:    &http.Client{Timeout: 5 * time.Second},
		baseURL:   baseURL,
		maxPieces: 7,
	}
}

// Lichess API response structure
type lichessResponse struct {
	Category string `json:"category"` // from the side to move's view
	DTZ      *int   `json:"dtz"`
	Moves    []struct {
		UCI      string `json:"uci"`
		Category string `json:"category"` // from the opponent's view after the move
	} `json:"moves"`
}

func (lp *LichessProber) ProbeRoot(ctx context.Context, q Query) (RootResult, error) {
	if !q.Probeable(lp.maxPieces) {
		return RootResult{}, ErrNoResult
	}

	u := lp.baseURL + "?" + url.Values{"fen": {q.FEN}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return RootResult{}, fmt.Errorf("lichess request: %w", err)
	}
	resp, err := lp.client.Do(req)
	if err != nil {
		return RootResult{}, fmt.Errorf("lichess request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RootResult{}, fmt.Errorf("lichess status %d", resp.StatusCode)
	}

	var result lichessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RootResult{}, fmt.Errorf("lichess response: %w", err)
	}
	wdl, ok := categoryToWDL(result.Category)
	if !ok || len(result.Moves) == 0 {
		return RootResult{}, ErrNoResult
	}

	r, err := parseUCIMove(q, result.Moves[0].UCI)
	if err != nil {
		return RootResult{}, err
	}
	r.WDL = wdl
	if result.DTZ != nil {
		r.DTZ = *result.DTZ
	}
	log.Debug().Str("component", "tablebase").Str("fen", q.FEN).Str("move", result.Moves[0].UCI).
		Str("category", result.Category).Msg("lichess probe")
	return r, nil
}

func (lp *LichessProber) MaxPieces() int {
	return lp.maxPieces
}

func categoryToWDL(category string) (WDL, bool) {
	switch category {
	case "win", "syzygy-win":
		return WDLWin, true
	case "maybe-win", "cursed-win":
		return WDLCursedWin, true
	case "draw":
		return WDLDraw, true
	case "maybe-loss", "blessed-loss":
		return WDLBlessedLoss, true
	case "loss", "syzygy-loss":
		return WDLLoss, true
	}
	return WDLDraw, false
}

// parseUCIMove decodes coordinate notation against q.
func parseUCIMove(q Query, uci string) (RootResult, error) {
	if len(uci) != 4 && len(uci) != 5 {
		return RootResult{}, fmt.Errorf("lichess move %q: bad length", uci)
	}
	from, err := board.ParseSquare(uci[0:2])
	if err != nil {
		return RootResult{}, fmt.Errorf("lichess move %q: %w", uci, err)
	}
	to, err := board.ParseSquare(uci[2:4])
	if err != nil {
		return RootResult{}, fmt.Errorf("lichess move %q: %w", uci, err)
	}

	r := RootResult{From: from, To: to, Promotion: board.NoPieceType}
	if len(uci) == 5 {
		switch uci[4] {
		case 'q':
			r.Promotion = board.Queen
		case 'r':
			r.Promotion = board.Rook
		case 'b':
			r.Promotion = board.Bishop
		case 'n':
			r.Promotion = board.Knight
		default:
			return RootResult{}, fmt.Errorf("lichess move %q: bad promotion", uci)
		}
	}
	r.EnPassant = q.Pawns.Has(from) && to == q.EnPassant
	return r, nil
}
