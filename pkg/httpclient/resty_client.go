package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient implements Client on top of resty.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient returns a client whose requests give up after timeout.
func NewRestyClient(timeout time.Duration) *RestyClient {
	return &RestyClient{client: resty.New().SetTimeout(timeout)}
}

func (r *RestyClient) request(ctx context.Context, headers map[string]string) *resty.Request {
	return r.client.R().SetContext(ctx).SetHeaders(headers)
}

// PostForm sends form url-encoded.
func (r *RestyClient) PostForm(ctx context.Context, url string, form, headers map[string]string) (Response, error) {
	resp, err := r.request(ctx, headers).SetFormData(form).Post(url)
	if err != nil {
		return nil, err
	}
	return restyResponse{resp}, nil
}

// Do sends body as-is with the given method. Content-Type comes from headers.
func (r *RestyClient) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (Response, error) {
	req := r.request(ctx, headers)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, err
	}
	return restyResponse{resp}, nil
}

type restyResponse struct {
	*resty.Response
}
