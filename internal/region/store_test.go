package region

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var emdCols = []string{"emd_cd", "emd_kor_nm", "latitude", "longitude", "total_accident"}

func TestStore_InSido(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE substr\(e.emd_cd, 1, 4\) = \$1`).
		WithArgs("4713").
		WillReturnRows(pgxmock.NewRows(emdCols).
			AddRow("47130115", "황오동", Float(35.84), Float(129.22), int64(38)).
			AddRow("47130120", "성건동", (*float64)(nil), (*float64)(nil), int64(0)))

	recs, err := NewStore(mock).InSido(context.Background(), "4713")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 38, recs[0].AccidentCount)
	assert.Equal(t, 35.84, *recs[0].Latitude)
	assert.Nil(t, recs[1].Latitude)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InBounds(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`a.latitude BETWEEN \$1 AND \$2`).
		WithArgs(33.0, 38.9, 124.0, 132.0).
		WillReturnRows(pgxmock.NewRows(emdCols).
			AddRow("11110101", "청운동", Float(37.58), Float(126.97), int64(4)).
			AddRow("11110101", "청운동", Float(37.58), Float(126.97), int64(4)))

	recs, err := NewStore(mock).InBounds(context.Background(), KoreaBounds)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Errors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewStore(mock)
	_, err = s.InBounds(context.Background(), Bounds{SWLat: 40, NELat: 30, SWLng: 1, NELng: 2})
	assert.ErrorContains(t, err, "invalid bounds")

	mock.ExpectQuery("emd_data").WithArgs("1111").WillReturnError(errors.New("connection reset"))
	_, err = s.InSido(context.Background(), "1111")
	assert.ErrorContains(t, err, "query emd totals")
	assert.NoError(t, mock.ExpectationsWereMet())
}
