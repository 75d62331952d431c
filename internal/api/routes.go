package api

import (
	"net/http"

	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/internal/sagas"
	"github.com/JaimeStill/docflow/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, runtime *Runtime, domain *Domain) {
	groups := []routes.Group{
		documents.NewHandler(domain.Documents, runtime.Logger, runtime.Pagination, runtime.MaxBodySize).Routes(),
	}
	if domain.Sagas != nil {
		groups = append(groups, sagas.NewHandler(domain.Sagas, runtime.Logger, runtime.Pagination, runtime.MaxBodySize).Routes())
	}

	routes.Register(mux, groups...)
}
