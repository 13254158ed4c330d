package httpapi

import (
	"net/http"
	"testing"

	"cityfix/api/internal/lifecycle"
	"cityfix/api/internal/models"
)

func TestStatusForCode(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{lifecycle.CodeInvalidInput, http.StatusBadRequest},
		{lifecycle.CodeInvalidDeadline, http.StatusBadRequest},
		{lifecycle.CodeInvalidPenalty, http.StatusBadRequest},
		{lifecycle.CodeRatingRequired, http.StatusBadRequest},
		{lifecycle.CodePhotoRequired, http.StatusBadRequest},
		{lifecycle.CodeForbidden, http.StatusForbidden},
		{lifecycle.CodeNotFound, http.StatusNotFound},
		{lifecycle.CodeClosedRequest, http.StatusConflict},
		{lifecycle.CodeNotDone, http.StatusConflict},
		{lifecycle.CodeNotAssigned, http.StatusConflict},
		{lifecycle.CodeNotInProgress, http.StatusConflict},
		{lifecycle.CodeWorkerMissing, http.StatusConflict},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForCode(tc.code); got != tc.want {
			t.Errorf("statusForCode(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestToRequestResponsePhotos(t *testing.T) {
	out := toRequestResponse(models.Request{})
	if out.BeforePhotos == nil || out.AfterPhotos == nil {
		t.Fatal("photo slices must serialize as arrays, not null")
	}
}
