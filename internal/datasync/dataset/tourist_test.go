package dataset

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yys/safewalk-cli/internal/config"
	"github.com/yys/safewalk-cli/internal/fetcher"
)

func TestRankingFileValues(t *testing.T) {
	set, ok := rankingFileValues("20250817000745_경상북도_인기관광지_전체.csv")
	require.True(t, ok)
	assert.Equal(t, "202508", set["base_year_month"])
	assert.Equal(t, "경상북도", set["sido_name"])
	assert.Equal(t, "인기관광지", set["mode"])
	assert.Equal(t, "인기관광지(전체)", set["source_file"])

	_, ok = rankingFileValues("readme.csv")
	assert.False(t, ok)
}

func touristFixture(t *testing.T) (string, *TouristSpots) {
	t.Helper()
	root := t.TempDir()
	writeSource(t, root, popularSpotsFile, []byte(
		"순위,관광지ID,관심지점명,구분,연령대,비율\n1,T1,성산일출봉,자연,20대,12.5\n"))
	writeSource(t, root, hotPlacesFile, []byte(
		"순위,관광지ID,관심지점명,구분,연령대,시도명,시군구명,기준년월,성장율\n1,T2,황리단길,거리,30대,경상북도,경주시,202507,15.2\n"))
	writeSource(t, root, popularSpotsDir+"/20250817000745_경상북도_인기관광지_전체.csv", []byte(
		"순위,관광지ID,관광지명,분류\n1,T3,불국사,역사\n2,T4,석굴암,역사\n"))
	writeSource(t, root, popularSpotsDir+"/notes.txt", []byte("skip me"))

	d, err := NewTouristSpots(loadTestCatalog(t), &config.Config{})
	require.NoError(t, err)
	return root, d
}

func TestTouristSpots_Sources(t *testing.T) {
	root, d := touristFixture(t)

	srcs := d.sources(fetcher.NewFileFetcher(root))
	require.Len(t, srcs, 3)
	assert.Equal(t, "제주특별자치도", srcs[0].set["sido_name"])
	assert.Equal(t, 0.0, srcs[1].set["ratio"])
	assert.Equal(t, "경상북도", srcs[2].set["sido_name"])
}

func TestTouristSpots_Incremental(t *testing.T) {
	root, d := touristFixture(t)
	cols := d.m.Targets()
	table := pgx.Identifier{"safewalk", "popular_tourist_spots"}

	mock := newPool(t)
	del := regexp.QuoteMeta("DELETE FROM safewalk.popular_tourist_spots t")
	mock.ExpectBegin()
	mock.ExpectExec(del).
		WithArgs([]string{"성산일출봉"}, []string{"세대별 인기관광지(전체)"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCopyFrom(table, cols).WillReturnResult(1)
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(del).
		WithArgs([]string{"황리단길"}, []string{"세대별 핫플레이스(전체)"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(table, cols).WillReturnResult(1)
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(del).
		WithArgs([]string{"불국사", "석굴암"}, []string{"인기관광지(전체)", "인기관광지(전체)"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(table, cols).WillReturnResult(2)
	mock.ExpectCommit()

	res, err := d.Sync(context.Background(), mock, fetcher.NewFileFetcher(root), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.RowsSynced)
	assert.Equal(t, 3, res.Metadata["files"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouristSpots_Full(t *testing.T) {
	root, d := touristFixture(t)

	mock := newPool(t)
	expectReplace(mock, "popular_tourist_spots", d.m.Targets(), 4)

	res, err := d.SyncFull(context.Background(), mock, fetcher.NewFileFetcher(root), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.RowsSynced)
	assert.Equal(t, true, res.Metadata["full"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouristSpots_MissingFixedFile(t *testing.T) {
	_, d := touristFixture(t)

	_, err := d.Sync(context.Background(), newPool(t), fetcher.NewFileFetcher(t.TempDir()), t.TempDir())
	assert.Error(t, err)
}
