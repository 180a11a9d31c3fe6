package split

import (
	"time"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	"github.com/Ul012/FOM.tft-timeseries/pkg/contracts/domain"
)

// ManifestInput names what a manifest needs beyond the partitions
type ManifestInput struct {
	Pipeline   config.PipelineConfig
	Boundaries Boundaries
	ScaledCols []string
	OutputDir  string
	Source     string
}

// NewManifest describes the partitions of one split
func NewManifest(parts *Partitions, in ManifestInput) (*domain.SplitManifest, error) {
	groups, err := parts.GroupCounts(in.Pipeline.GroupCols)
	if err != nil {
		return nil, err
	}
	unseen := parts.UnseenGroups
	if unseen == nil {
		unseen = []string{}
	}
	scaled := in.ScaledCols
	if scaled == nil {
		scaled = []string{}
	}

	return &domain.SplitManifest{
		TimeCol:        in.Pipeline.TimeCol,
		IDCols:         in.Pipeline.GroupCols,
		TargetCol:      in.Pipeline.TargetCol,
		ValStart:       in.Boundaries.ValStart.Format(time.DateOnly),
		TestStart:      in.Boundaries.TestStart.Format(time.DateOnly),
		BoundarySource: in.Boundaries.Source,
		Rows: domain.SplitRows{
			Train: parts.Train.NumRows(),
			Val:   parts.Val.NumRows(),
			Test:  parts.Test.NumRows(),
		},
		Groups: domain.SplitRows{
			Train: groups[config.SplitTrain],
			Val:   groups[config.SplitVal],
			Test:  groups[config.SplitTest],
		},
		ExcludedRows: parts.Excluded,
		UnseenGroups: unseen,
		ScaledCols:   scaled,
		OutputDir:    in.OutputDir,
		Source:       in.Source,
		Format:       in.Pipeline.Format,
	}, nil
}
