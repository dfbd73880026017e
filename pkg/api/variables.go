package api

import (
	"context"
	"net/http"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/go-resty/resty/v2"
)

func (c *Client) ListVariables(ctx context.Context) ([]domain.Variable, error) {
	var out []domain.Variable
	_, err := c.request(ctx, "list_variables", "", http.MethodGet, "/variables", nil, &out)
	return out, err
}

func (c *Client) Variable(ctx context.Context, name string) (domain.Variable, error) {
	var out domain.Variable
	_, err := c.request(ctx, "get_variable", "", http.MethodGet, "/variables/{name}", func(req *resty.Request) {
		req.SetPathParam("name", name)
	}, &out)
	return out, err
}

func (c *Client) CreateVariable(ctx context.Context, v domain.Variable) (domain.Variable, error) {
	body := map[string]string{"name": v.Name, "value": v.Value}
	if v.Description != "" {
		body["description"] = v.Description
	}
	var out domain.Variable
	_, err := c.request(ctx, "create_variable", "", http.MethodPost, "/variables", func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}, &out)
	return out, err
}

func (c *Client) DeleteVariable(ctx context.Context, name string) error {
	_, err := c.request(ctx, "delete_variable", "", http.MethodDelete, "/variables/{name}", func(req *resty.Request) {
		req.SetPathParam("name", name)
	}, nil)
	return err
}
