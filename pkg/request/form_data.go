package request

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// File is an uploadable file of a multipart request.
type File struct {
	// Name is the file name sent to the server.
	Name string
	// ContentType of the file, "application/octet-stream" is used if empty.
	ContentType string
	// Data is the file content.
	Data []byte
}

// FormData is a multipart/form-data body.
// The content type with the boundary is set on the wire by the transport,
// so the Content-Type header of the Request should stay unset.
type FormData struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	name string
	file File
}

// NewFormData creates an empty multipart body.
func NewFormData() *FormData {
	return &FormData{}
}

// Set sets a form field, an existing value is replaced.
func (f *FormData) Set(name, value string) *FormData {
	for i := range f.fields {
		if f.fields[i].name == name {
			f.fields[i].value = value
			return f
		}
	}
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// SetFile sets a file field, an existing file is replaced.
func (f *FormData) SetFile(name string, file File) *FormData {
	for i := range f.files {
		if f.files[i].name == name {
			f.files[i].file = file
			return f
		}
	}
	f.files = append(f.files, formFile{name: name, file: file})
	return f
}

// Get returns value of the form field.
func (f *FormData) Get(name string) (string, bool) {
	for _, field := range f.fields {
		if field.name == name {
			return field.value, true
		}
	}
	return "", false
}

// File returns the file field.
func (f *FormData) File(name string) (File, bool) {
	for _, file := range f.files {
		if file.name == name {
			return file.file, true
		}
	}
	return File{}, false
}

// Encode returns the multipart content type, including the boundary, and the encoded body.
// It can be called multiple times, for example on a retry.
func (f *FormData) Encode() (string, io.Reader, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return "", nil, fmt.Errorf(`cannot write form field "%s": %w`, field.name, err)
		}
	}

	for _, item := range f.files {
		contentType := item.file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		fileName := item.file.Name
		if fileName == "" {
			fileName = item.name
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+escapeQuotes(item.name)+`"; filename="`+escapeQuotes(fileName)+`"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return "", nil, fmt.Errorf(`cannot create form file "%s": %w`, item.name, err)
		}
		if _, err := part.Write(item.file.Data); err != nil {
			return "", nil, fmt.Errorf(`cannot write form file "%s": %w`, item.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return "", nil, err
	}
	return w.FormDataContentType(), bytes.NewReader(buf.Bytes()), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
