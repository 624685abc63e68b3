// Package metrics собирает метрики Prometheus для проверок права, заявок и каталога.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

// Metrics хранит коллекторы сервиса. Нулевой указатель допустим: все методы становятся пустыми.
type Metrics struct {
	verdicts       *prometheus.CounterVec
	applications   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	catalogReloads *prometheus.CounterVec
	catalogSchemes prometheus.Gauge
}

// New регистрирует коллекторы в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheme_verdicts_total",
				Help: "Eligibility verdicts produced, by outcome",
			},
			[]string{"eligible"},
		),
		applications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheme_applications_total",
				Help: "Apply requests, by outcome (created or existing)",
			},
			[]string{"outcome"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheme_application_transitions_total",
				Help: "Application status changes, by target status",
			},
			[]string{"to"},
		),
		catalogReloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheme_catalog_reloads_total",
				Help: "Catalog loads, by result",
			},
			[]string{"result"},
		),
		catalogSchemes: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheme_catalog_schemes",
				Help: "Number of schemes in the active catalog",
			},
		),
	}
}

// ObserveVerdict учитывает один вердикт.
func (m *Metrics) ObserveVerdict(v model.Verdict) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(strconv.FormatBool(v.Eligible)).Inc()
}

// ApplicationCreated учитывает запрос на подачу заявки.
func (m *Metrics) ApplicationCreated(existing bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if existing {
		outcome = "existing"
	}
	m.applications.WithLabelValues(outcome).Inc()
}

// StatusChanged учитывает смену статуса заявки.
func (m *Metrics) StatusChanged(to model.ApplicationStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to)).Inc()
}

// CatalogLoaded учитывает загрузку каталога. При успехе обновляет число программ.
func (m *Metrics) CatalogLoaded(schemes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.catalogReloads.WithLabelValues("error").Inc()
		return
	}
	m.catalogReloads.WithLabelValues("ok").Inc()
	m.catalogSchemes.Set(float64(schemes))
}

// Handler возвращает HTTP-обработчик для выдачи метрик из g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{DisableCompression: true})
}
