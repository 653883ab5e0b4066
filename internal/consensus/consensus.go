// Package consensus classifies the point estimates of a single work item as
// agreed or needing discussion, using gap-based clustering.
package consensus

import "sort"

// Outcome kinds.
const (
	KindPerfect    = "perfect"    // every vote identical
	KindCluster    = "cluster"    // one dominant cluster
	KindDiscussion = "discussion" // no agreement, talk it out
)

// Policy tunes the clustering analysis. Zero values are replaced by the
// defaults below.
type Policy struct {
	GapThreshold int     // sorted gap greater than this starts a new cluster
	ClusterShare float64 // fraction of votes a single cluster must cover
	MinVotes     int     // fewer votes than this can never form a cluster
}

// DefaultPolicy matches a Fibonacci scale: adjacent values up to a gap of 2
// cluster together, and a lone cluster holding 60% of at least 3 votes wins.
var DefaultPolicy = Policy{GapThreshold: 2, ClusterShare: 0.6, MinVotes: 3}

// Outcome is the classification of one item's votes.
type Outcome struct {
	Kind     string
	Final    int     // settled points for perfect/cluster outcomes
	Clusters [][]int // gap-partition of the sorted votes
	Min      int
	Max      int
	Median   int
}

func (p Policy) withDefaults() Policy {
	if p.GapThreshold == 0 {
		p.GapThreshold = DefaultPolicy.GapThreshold
	}
	if p.ClusterShare == 0 {
		p.ClusterShare = DefaultPolicy.ClusterShare
	}
	if p.MinVotes == 0 {
		p.MinVotes = DefaultPolicy.MinVotes
	}
	return p
}

// Classify analyzes one item's point values. The input is copied and sorted;
// an empty input classifies as discussion with no clusters.
func Classify(values []int, policy Policy) Outcome {
	policy = policy.withDefaults()

	if len(values) == 0 {
		return Outcome{Kind: KindDiscussion}
	}

	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	out := Outcome{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: sorted[len(sorted)/2],
	}

	if sorted[0] == sorted[len(sorted)-1] {
		out.Kind = KindPerfect
		out.Final = sorted[0]
		out.Clusters = [][]int{sorted}
		return out
	}

	out.Clusters = FindClusters(sorted, policy.GapThreshold)

	if len(sorted) >= policy.MinVotes && len(out.Clusters) == 1 &&
		float64(len(out.Clusters[0])) >= float64(len(sorted))*policy.ClusterShare {
		cluster := out.Clusters[0]
		out.Kind = KindCluster
		// Take the highest value in the cluster: rounding up is the safe
		// direction for estimates.
		out.Final = cluster[len(cluster)-1]
		return out
	}

	out.Kind = KindDiscussion
	return out
}

// FindClusters partitions sorted values: a gap greater than gapThreshold
// between neighbors starts a new cluster.
func FindClusters(sorted []int, gapThreshold int) [][]int {
	if len(sorted) == 0 {
		return nil
	}
	clusters := [][]int{{sorted[0]}}
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] > gapThreshold {
			clusters = append(clusters, []int{sorted[i]})
		} else {
			last := len(clusters) - 1
			clusters[last] = append(clusters[last], sorted[i])
		}
	}
	return clusters
}
