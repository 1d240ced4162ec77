package app

import (
	"context"
	"math"
	"sort"

	"edugame-service/internal/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultLeaderboardSize is the number of ranked rows shown before the requester's own row.
const DefaultLeaderboardSize = 20

// Aggregator merges every ResultSource into per-student totals and the global ranking.
// It keeps no state between calls; every read rescans the sources.
type Aggregator struct {
	sources []ResultSource
	size    int
	sf      singleflight.Group
}

func NewAggregator(size int, sources ...ResultSource) *Aggregator {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	return &Aggregator{sources: sources, size: size}
}

// StudentStats returns games played, summed score and the rounded average score.
func (a *Aggregator) StudentStats(ctx context.Context, studentName string) (domain.StudentStats, error) {
	scores, err := a.studentScores(ctx, studentName)
	if err != nil {
		return domain.StudentStats{}, err
	}
	var stats domain.StudentStats
	for _, s := range scores {
		stats.TotalGamesPlayed += s.Games
		stats.TotalScore += s.Total
	}
	if stats.TotalGamesPlayed > 0 {
		stats.AvgScore = int(math.Round(float64(stats.TotalScore) / float64(stats.TotalGamesPlayed)))
	}
	return stats, nil
}

// ModalityCounts returns how many games of each modality the student completed.
func (a *Aggregator) ModalityCounts(ctx context.Context, studentName string) (domain.ModalityCounts, error) {
	scores, err := a.studentScores(ctx, studentName)
	if err != nil {
		return domain.ModalityCounts{}, err
	}
	var counts domain.ModalityCounts
	for i, src := range a.sources {
		switch src.Modality() {
		case domain.ModalityQuiz:
			counts.Quiz += scores[i].Games
		case domain.ModalityFill:
			counts.Fill += scores[i].Games
		case domain.ModalityCoding:
			counts.Coding += scores[i].Games
		case domain.ModalityParagraph:
			counts.Paragraph += scores[i].Games
		}
	}
	return counts, nil
}

// Achievement returns the student's total score with its tier breakdown.
func (a *Aggregator) Achievement(ctx context.Context, caller *domain.Identity) (domain.Achievement, error) {
	if !caller.IsStudent() {
		return domain.Achievement{}, domain.ErrUnauthorized
	}
	stats, err := a.StudentStats(ctx, caller.Name)
	if err != nil {
		return domain.Achievement{}, err
	}
	return domain.Achievement{
		TotalScore:  stats.TotalScore,
		RankDetails: domain.RankDetailsFor(stats.TotalScore),
	}, nil
}

// Leaderboard returns the top rows of the global ranking. A student requester ranked
// below the cut gets their own row appended with its true rank.
func (a *Aggregator) Leaderboard(ctx context.Context, requester *domain.Identity) (domain.Leaderboard, error) {
	ranked, err := a.ranking(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	n := len(ranked)
	if n > a.size {
		n = a.size
	}
	entries := make([]domain.LeaderboardEntry, n, n+1)
	copy(entries, ranked[:n])

	if requester.IsStudent() {
		for _, e := range ranked[n:] {
			if e.StudentName == requester.Name {
				entries = append(entries, e)
				break
			}
		}
	}
	return domain.Leaderboard{Entries: entries}, nil
}

// ranking coalesces concurrent scans; the returned slice is shared and must not be modified.
// The shared scan ignores the cancellation of whichever caller started it, and each caller
// stops waiting when its own ctx is done.
func (a *Aggregator) ranking(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	scanCtx := context.WithoutCancel(ctx)
	ch := a.sf.DoChan("ranking", func() (interface{}, error) {
		partitions := make([][]domain.StudentScore, len(a.sources))
		g, gctx := errgroup.WithContext(scanCtx)
		for i, src := range a.sources {
			i, src := i, src
			g.Go(func() error {
				rows, err := src.AllScores(gctx)
				if err != nil {
					return storeErr(err)
				}
				partitions[i] = rows
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return rank(partitions), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.LeaderboardEntry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// rank merges partitions as a disjoint union, sorts by total descending then name
// ascending, and assigns 1-based ranks.
func rank(partitions [][]domain.StudentScore) []domain.LeaderboardEntry {
	merged := make(map[string]*domain.LeaderboardEntry)
	for _, rows := range partitions {
		for _, row := range rows {
			entry, ok := merged[row.StudentName]
			if !ok {
				entry = &domain.LeaderboardEntry{StudentName: row.StudentName}
				merged[row.StudentName] = entry
			}
			entry.TotalGamesPlayed += row.Games
			entry.TotalScore += row.Total
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(merged))
	for _, e := range merged {
		if e.TotalGamesPlayed == 0 {
			continue
		}
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].StudentName < entries[j].StudentName
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (a *Aggregator) studentScores(ctx context.Context, studentName string) ([]domain.StudentScore, error) {
	scores := make([]domain.StudentScore, len(a.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			s, err := src.StudentScore(gctx, studentName)
			if err != nil {
				return storeErr(err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
