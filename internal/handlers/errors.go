package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/middleware"
)

var errInvalidID = errors.New("invalid id")

// writeLedgerError maps a ledger error kind onto an HTTP status.
func writeLedgerError(c *gin.Context, err error) {
	kind := ledger.Kind(err)
	status := http.StatusInternalServerError
	switch kind {
	case ledger.ErrNotFound:
		status = http.StatusNotFound
	case ledger.ErrBadRequest:
		status = http.StatusBadRequest
	case ledger.ErrForbidden:
		status = http.StatusForbidden
	case ledger.ErrConflict:
		status = http.StatusConflict
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Something went wrong, please try again"
	}
	c.JSON(status, gin.H{"error": http.StatusText(status), "message": message})
}

func pathID(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// requireUser returns the authenticated caller or writes a 401.
func requireUser(c *gin.Context) (int, bool) {
	id, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, false
	}
	return id, true
}
