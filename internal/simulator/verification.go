package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// verifyResults fetches the read side and checks it against the generated
// events: the leaderboard must be sorted, gaps must be relative to the
// leader, and the session best lap must match the fastest surviving lap.
func verifyResults(ctx context.Context, config *Config, events, deletions []Event) error {
	log.Println("verifying results...")

	client := newHTTPClient(config.Timeout)
	base := config.BaseURL + "/sessions/" + config.SessionID

	board, err := fetchLeaderboard(ctx, client, base)
	if err != nil {
		return err
	}
	best, err := fetchBestLap(ctx, client, base)
	if err != nil {
		return err
	}

	if err := verifyLeaderboardOrder(board); err != nil {
		return err
	}
	log.Println("leaderboard ordering verified")

	if err := verifyBestLap(best, board, events, deletions); err != nil {
		return err
	}
	log.Println("session best lap verified")

	displayTopStandings(board, config.Verbose)

	log.Println("result verification completed")
	return nil
}

func fetchLeaderboard(ctx context.Context, client *HTTPClient, base string) (*Leaderboard, error) {
	resp, err := client.Get(ctx, base+"/leaderboard")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	if resp.StatusCode != statusOK {
		return nil, fmt.Errorf("leaderboard fetch failed with status: %d", resp.StatusCode)
	}
	var board Leaderboard
	if err := json.Unmarshal(body, &board); err != nil {
		return nil, fmt.Errorf("failed to parse leaderboard: %w", err)
	}
	return &board, nil
}

func fetchBestLap(ctx context.Context, client *HTTPClient, base string) (*BestResponse, error) {
	resp, err := client.Get(ctx, base+"/best-lap")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch best lap: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read best lap: %w", err)
	}
	if resp.StatusCode != statusOK {
		return nil, fmt.Errorf("best lap fetch failed with status: %d", resp.StatusCode)
	}
	var best BestResponse
	if err := json.Unmarshal(body, &best); err != nil {
		return nil, fmt.Errorf("failed to parse best lap: %w", err)
	}
	return &best, nil
}

// verifyLeaderboardOrder checks ascending best-lap order with timed devices
// ahead of timeless ones, and gaps anchored on the leader.
func verifyLeaderboardOrder(board *Leaderboard) error {
	if len(board.Standings) == 0 {
		return fmt.Errorf("empty leaderboard")
	}

	leader := board.Standings[0]
	for i := 1; i < len(board.Standings); i++ {
		prev, cur := board.Standings[i-1], board.Standings[i]
		if cur.BestLapMS > 0 && prev.BestLapMS == 0 {
			return fmt.Errorf("timed device %s ranked behind timeless device %s", cur.DeviceID, prev.DeviceID)
		}
		if cur.BestLapMS > 0 && prev.BestLapMS > 0 && cur.BestLapMS < prev.BestLapMS {
			return fmt.Errorf("leaderboard not sorted at position %d", cur.Position)
		}
		if cur.BestLapMS > 0 && leader.BestLapMS > 0 && cur.GapMS != cur.BestLapMS-leader.BestLapMS {
			return fmt.Errorf("gap mismatch for device %s: got %d, want %d",
				cur.DeviceID, cur.GapMS, cur.BestLapMS-leader.BestLapMS)
		}
	}
	return nil
}

// verifyBestLap recomputes the expected session best from the generated
// events minus the retracted ones.
func verifyBestLap(best *BestResponse, board *Leaderboard, events, deletions []Event) error {
	deleted := make(map[string]bool, len(deletions))
	for _, d := range deletions {
		deleted[d.EventID] = true
	}

	var want int64
	for _, ev := range events {
		if ev.Type != "lap" || ev.ElapsedMS == 0 || deleted[ev.EventID] {
			continue
		}
		if want == 0 || ev.ElapsedMS < want {
			want = ev.ElapsedMS
		}
	}

	if want == 0 {
		if best.Set {
			return fmt.Errorf("service reports a best lap but none was expected")
		}
		return nil
	}
	if !best.Set {
		return fmt.Errorf("service reports no best lap, expected %d ms", want)
	}
	if best.ElapsedMS != want {
		return fmt.Errorf("best lap mismatch: got %d ms, want %d ms", best.ElapsedMS, want)
	}
	if len(board.Standings) > 0 && board.Standings[0].BestLapMS != want {
		return fmt.Errorf("leader best lap (%d ms) does not match session best (%d ms)",
			board.Standings[0].BestLapMS, want)
	}
	return nil
}

// displayTopStandings shows the front of the field.
func displayTopStandings(board *Leaderboard, verbose bool) {
	topN := 10
	if len(board.Standings) < topN {
		topN = len(board.Standings)
	}

	log.Printf("top %d standings:", topN)
	for i := 0; i < topN; i++ {
		row := board.Standings[i]
		log.Printf("   %d. %s - best lap: %d ms (gap: %d ms, laps: %d)",
			row.Position, row.DeviceID, row.BestLapMS, row.GapMS, row.Laps)
	}

	if verbose && len(board.Standings) > topN {
		log.Printf("   ... and %d more devices", len(board.Standings)-topN)
	}
}
