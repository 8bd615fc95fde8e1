package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

// writeError отдаёт ошибку в формате API документов: {error, code, type}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.APIError{Error: msg, Code: status, Type: model.ErrorType(status)})
}

// queryInt читает целый query-параметр; пустое или нечисловое значение даёт def.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}
