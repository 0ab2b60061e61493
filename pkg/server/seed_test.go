package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/voltwatch/voltwatch/pkg/storage/storagemock"
	"github.com/voltwatch/voltwatch/pkg/types"
)

func TestHandleSeed(t *testing.T) {
	t.Run("Seeds Store", func(t *testing.T) {
		mockS := new(storagemock.MockDatabase)
		srv := newTestServer(mockS)
		mockS.On("DeletePointsBySource", mock.Anything, types.SourceDemo).Return(5, nil)
		mockS.On("InsertPoints", mock.Anything, mock.MatchedBy(func(points []types.TelemetryPoint) bool {
			if len(points) != 1491 {
				return false
			}
			// only demo points may be written by a reseed
			for _, p := range points {
				if p.Source != types.SourceDemo {
					return false
				}
			}
			return points[len(points)-1].TS.Equal(testNow)
		})).Return([]string{"ignored"}, nil)

		w := httptest.NewRecorder()
		srv.handleSeed(w, httptest.NewRequest("POST", "/api/seed", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp seedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.Equal(t, 1491, resp.Inserted)
		assert.Equal(t, types.SourceStored, resp.Source)
		mockS.AssertExpectations(t)
	})

	t.Run("Delete Failure Resets Cache", func(t *testing.T) {
		mockS := new(storagemock.MockDatabase)
		srv := newTestServer(mockS)
		mockS.On("DeletePointsBySource", mock.Anything, types.SourceDemo).Return(0, assert.AnError)

		w := httptest.NewRecorder()
		srv.handleSeed(w, httptest.NewRequest("POST", "/api/seed", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp seedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.Equal(t, types.SourceDemo, resp.Source)
		assert.Equal(t, 1491, resp.Inserted)
		mockS.AssertNotCalled(t, "InsertPoints", mock.Anything, mock.Anything)
	})

	t.Run("Insert Failure Resets Cache", func(t *testing.T) {
		mockS := new(storagemock.MockDatabase)
		srv := newTestServer(mockS)
		mockS.On("DeletePointsBySource", mock.Anything, types.SourceDemo).Return(3, nil)
		mockS.On("InsertPoints", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		w := httptest.NewRecorder()
		srv.handleSeed(w, httptest.NewRequest("POST", "/api/seed", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp seedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, types.SourceDemo, resp.Source)
		mockS.AssertExpectations(t)
	})
}
