package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ul012/FOM.tft-timeseries/pkg/contracts/domain"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, domain.DatasetSpecVersion, info.DatasetSpecSchema)
	assert.NotEmpty(t, info.GoVersion)

	assert.Equal(t, "tftprep v"+Version, GetVersionString())
	assert.Contains(t, GetFullVersionString(), "dataset spec schema: "+domain.DatasetSpecVersion)
	assert.False(t, IsPrerelease())
}
