// Package httputil provides JSON response helpers for the ops server.
//
// Engine errors are mapped to status codes through apperrors:
//
//	if err != nil {
//		httputil.WriteAppError(w, err)
//		return
//	}
//	httputil.WriteJSON(w, http.StatusOK, result)
package httputil
