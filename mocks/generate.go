package mocks

//go:generate mockgen -destination=./mock_vertex.go -package=mocks github.com/rxtech-lab/argo-strategy/internal/graph Vertex
//go:generate mockgen -destination=./mock_history_source.go -package=mocks github.com/rxtech-lab/argo-strategy/internal/datasource HistorySource
