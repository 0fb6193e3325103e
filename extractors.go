package adaptfn

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Header extracts a required request header. A missing header is a 400.
func Header[S any](name string) HeadExtractor[S, string] {
	return func(_ context.Context, p *Parts, _ *S) (string, error) {
		v := p.Header.Get(name)
		if v == "" {
			return "", Reject(http.StatusBadRequest, "missing_header", "Missing request header %q", name)
		}
		return v, nil
	}
}

// OptionalHeader extracts a request header, or "" if it is absent.
func OptionalHeader[S any](name string) HeadExtractor[S, string] {
	return func(_ context.Context, p *Parts, _ *S) (string, error) {
		return p.Header.Get(name), nil
	}
}

// Query extracts the parsed query string. A request without one yields an
// empty map.
func Query[S any]() HeadExtractor[S, url.Values] {
	return func(_ context.Context, p *Parts, _ *S) (url.Values, error) {
		if p.URL == nil {
			return url.Values{}, nil
		}
		q, err := url.ParseQuery(p.URL.RawQuery)
		if err != nil {
			return nil, Reject(http.StatusBadRequest, "invalid_query", "Failed to parse query string").WithCause(err)
		}
		return q, nil
	}
}

// Method extracts the request method.
func Method[S any]() HeadExtractor[S, string] {
	return func(_ context.Context, p *Parts, _ *S) (string, error) {
		return p.Method, nil
	}
}

// URI extracts the request URL.
func URI[S any]() HeadExtractor[S, *url.URL] {
	return func(_ context.Context, p *Parts, _ *S) (*url.URL, error) {
		return p.URL, nil
	}
}

// State extracts the layer's shared state.
func State[S any]() HeadExtractor[S, *S] {
	return func(_ context.Context, _ *Parts, state *S) (*S, error) {
		return state, nil
	}
}

// Request extracts the whole request. Its body is left unread.
func Request[S any]() BodyExtractor[S, *http.Request] {
	return func(_ context.Context, r *http.Request, _ *S) (*http.Request, error) {
		return r, nil
	}
}

// Body reads the request body. Bodies over an http.MaxBytesReader limit are a
// 413.
func Body[S any]() BodyExtractor[S, []byte] {
	return func(_ context.Context, r *http.Request, _ *S) ([]byte, error) {
		return readBody(r)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, Reject(http.StatusRequestEntityTooLarge, "body_too_large", "Request body exceeds %d bytes", tooLarge.Limit).WithCause(err)
		}
		return nil, Reject(http.StatusBadRequest, "body_read_failed", "Failed to read request body").WithCause(err)
	}
	return data, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their json names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// JSON decodes a JSON request body into T and validates it using its
// `validate` struct tags.
func JSON[S, T any]() BodyExtractor[S, T] {
	return func(_ context.Context, r *http.Request, _ *S) (T, error) {
		var v T
		mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mt != "application/json" && !strings.HasSuffix(mt, "+json") {
			return v, Reject(http.StatusUnsupportedMediaType, "unsupported_media_type", "Expected request with `Content-Type: application/json`")
		}
		data, err := readBody(r)
		if err != nil {
			return v, err
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return v, Reject(http.StatusBadRequest, "invalid_json", "Failed to parse the request body as JSON").WithCause(err)
		}
		if rv := reflect.ValueOf(&v).Elem(); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return v, Reject(http.StatusBadRequest, "invalid_json", "Request body must not be null")
		}
		if reflect.Indirect(reflect.ValueOf(v)).Kind() != reflect.Struct {
			return v, nil
		}
		if err := getValidator().Struct(v); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return v, Reject(http.StatusUnprocessableEntity, "validation_failed", "validation failed").WithCause(err)
			}
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Field()+": failed on "+fe.Tag())
			}
			return v, Reject(http.StatusUnprocessableEntity, "validation_failed", "%s", strings.Join(msgs, "; ")).WithCause(err)
		}
		return v, nil
	}
}
