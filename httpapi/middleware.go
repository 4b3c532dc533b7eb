package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type handlerResponse struct {
	Code int
	Body interface{}
	Err  error
	//Written is set by handlers that wrote their own response, e.g. a stream
	Written bool
}

type returnHandler func(http.ResponseWriter, *http.Request) *handlerResponse

const logTemplate = "{{.Date}} {{.Method}} {{.Path}}{{if .Query}}?{{.Query}}{{end}} {{.Code}} ({{.Status}}){{if .Duration}} in {{.Duration}}{{end}}{{if .Err}}, Error: {{.Err}}{{end}}\n"

var logTmpl = template.Must(template.New("log").Parse(logTemplate))

type logData struct {
	Date     string
	Status   string
	Code     int
	Method   string
	Path     string
	Query    string
	Duration time.Duration
	Err      error
}

func writeLog(writer io.Writer, r *http.Request, start time.Time, resp *handlerResponse) {
	err := logTmpl.Execute(writer, &logData{
		Date:     start.Format("2006-01-02:15:04:05 -0700"),
		Status:   http.StatusText(resp.Code),
		Code:     resp.Code,
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    redactQuery(r),
		Duration: time.Since(start).Round(time.Millisecond),
		Err:      resp.Err,
	})

	if err != nil {
		panic(err)
	}
}

//redactQuery returns the request's query with the access key removed
func redactQuery(r *http.Request) string {
	q := r.URL.Query()
	if q.Get(accessKeyParam) == "" {
		return r.URL.RawQuery
	}
	q.Set(accessKeyParam, "REDACTED")
	return q.Encode()
}

func logMiddleware(next returnHandler, writer io.Writer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := next(w, r)
		writeLog(writer, r, start, resp)
	})
}

func jsonMiddleware(next returnHandler) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		var resp *handlerResponse

		if r.Method != "GET" {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil {
				resp = handleError(http.StatusBadRequest, errors.New("Could not parse Content-Type"))
				goto serve
			}
			if mediaType != "application/json" {
				resp = handleError(http.StatusBadRequest, errors.New("Content-Type not application/json"))
				goto serve
			}
		}

		w.Header().Set("Content-Type", "application/json")
		resp = next(w, r)
		if resp.Written {
			return resp
		}

	serve:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.Code)
		e := json.NewEncoder(w)
		err := e.Encode(resp.Body)
		if err != nil {
			return handleError(http.StatusInternalServerError, fmt.Errorf("Could encode json: %v", err))
		}
		return resp
	}
}

const accessKeyParam = "access_key"

//accessKey returns the key from the Authorization header, or from the query for websocket clients that can't set headers
func accessKey(r *http.Request, allowQuery bool) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if allowQuery {
		return r.URL.Query().Get(accessKeyParam)
	}
	return ""
}

//checkAccessKey returns nil if hash is empty (auth disabled) or key matches hash
func checkAccessKey(hash []byte, key string) error {
	if len(hash) == 0 {
		return nil
	}
	if key == "" {
		return errors.New("access key empty")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
		return fmt.Errorf("Could not authenticate access key: %v", err)
	}
	return nil
}

func authMiddleware(next returnHandler, hash []byte) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if err := checkAccessKey(hash, accessKey(r, false)); err != nil {
			return handleError(http.StatusUnauthorized, err)
		}
		return next(w, r)
	}
}

//wsAuthMiddleware authenticates websocket upgrades. Failures are answered before the upgrade.
func wsAuthMiddleware(next http.Handler, hash []byte, writer io.Writer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := checkAccessKey(hash, accessKey(r, true)); err != nil {
			resp := handleError(http.StatusUnauthorized, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.Code)
			json.NewEncoder(w).Encode(resp.Body)
			writeLog(writer, r, start, resp)
			return
		}

		next.ServeHTTP(w, r)
		writeLog(writer, r, start, &handlerResponse{Code: http.StatusSwitchingProtocols})
	})
}
