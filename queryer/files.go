package queryer

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/buildbuildio/fusion/requests"
)

type uploadMapItem struct {
	upload    *requests.Upload
	positions []string
}

// uploadMap lists uploads in the order they become form files "0", "1", ...
type uploadMap []*uploadMapItem

func (u uploadMap) Map() map[string][]string {
	result := make(map[string][]string, len(u))
	for idx, item := range u {
		result[strconv.Itoa(idx)] = item.positions
	}
	return result
}

func (u uploadMap) Empty() bool {
	return len(u) == 0
}

func (u *uploadMap) add(upload *requests.Upload, position string) {
	for _, item := range *u {
		if item.upload == upload {
			item.positions = append(item.positions, position)
			return
		}
	}
	*u = append(*u, &uploadMapItem{upload: upload, positions: []string{position}})
}

// extractFiles collects the uploads of input. When there are any, the
// variables of input are replaced with a copy holding null at every upload.
func extractFiles(input *requests.Request) uploadMap {
	var uploads uploadMap
	if input == nil || len(input.Variables) == 0 {
		return uploads
	}

	variables := uploads.extract(input.Variables, "variables").(map[string]interface{})
	if !uploads.Empty() {
		input.Variables = variables
	}
	return uploads
}

func (u *uploadMap) extract(value interface{}, path string) interface{} {
	switch val := value.(type) {
	case *requests.Upload:
		u.add(val, path)
		return nil
	case requests.Upload:
		u.add(&val, path)
		return nil
	case map[string]interface{}:
		res := make(map[string]interface{}, len(val))
		for k, v := range val {
			res[k] = u.extract(v, path+"."+k)
		}
		return res
	case []interface{}:
		res := make([]interface{}, len(val))
		for i, v := range val {
			res[i] = u.extract(v, path+"."+strconv.Itoa(i))
		}
		return res
	default:
		return value
	}
}

// prepareMultipart encodes operations and uploads following the GraphQL multipart request spec.
func prepareMultipart(operations []byte, uploads uploadMap) ([]byte, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	if err := w.WriteField("operations", string(operations)); err != nil {
		return nil, "", err
	}

	fileMap, err := json.Marshal(uploads.Map())
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("map", string(fileMap)); err != nil {
		return nil, "", err
	}

	for index, item := range uploads {
		fw, err := w.CreateFormFile(strconv.Itoa(index), item.upload.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(fw, item.upload.File); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return b.Bytes(), w.FormDataContentType(), nil
}
