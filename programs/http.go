package programs

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

// ServeHTTP exposes the directory: GET on the root lists names, GET on a
// name reads it, PUT writes the request body and DELETE removes it.
func (d *Dir) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case "GET":
		if name == "" {
			w.Header().Set("Content-Type", "application/json")
			err := json.NewEncoder(w).Encode(d.List())
			if err != nil {
				log.Println("ERROR: encode:", err)
			}
			return
		}
		data, err := d.Read(name)
		if err != nil {
			httpError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, data)
	case "PUT":
		data, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = d.Write(name, data); err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "DELETE":
		if err := d.Remove(name); err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, os.ErrNotExist):
		code = http.StatusNotFound
	case errors.Is(err, ErrInvalidName):
		code = http.StatusBadRequest
	}
	log.Printf("ERROR: %+v", err)
	http.Error(w, err.Error(), code)
}
