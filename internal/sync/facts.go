// Package sync implements the sync manager: schema management, extraction,
// transformation, loading, and job orchestration.
package sync

import "tms-sync/internal/domain"

// whereMarker is replaced by the extractor with the composed date filter.
const whereMarker = "{{where}}"

// factOrderSpec describes tms_fact_order: one row per order, keyed by order_id.
var factOrderSpec = &domain.TableSpec{
	Fact:       domain.FactOrder,
	Table:      "tms_fact_order",
	KeyColumns: []string{"order_id"},
	Columns: []domain.ColumnSpec{
		{Name: "status", Type: domain.ColText},
		{Name: "manifest_reference", Type: domain.ColText},
		{Name: "order_id", Type: domain.ColText, Required: true},
		{Name: "manifest_integration_id", Type: domain.ColText},
		{Name: "external_expedition_type", Type: domain.ColText},
		{Name: "driver_name", Type: domain.ColText},
		{Name: "vehicle_code", Type: domain.ColText},
		{Name: "faktur_date", Type: domain.ColDate, Required: true},
		{Name: "tms_created", Type: domain.ColTimestamp},
		{Name: "route_created", Type: domain.ColDate},
		{Name: "delivery_date", Type: domain.ColDate},
		{Name: "route_id", Type: domain.ColText},
		{Name: "tms_complete", Type: domain.ColTimestamp},
		{Name: "location_confirmation", Type: domain.ColDate},
		{Name: "faktur_total_quantity", Type: domain.ColNumeric},
		{Name: "tms_total_quantity", Type: domain.ColNumeric},
		{Name: "total_return", Type: domain.ColNumeric},
		{Name: "total_net_value", Type: domain.ColNumeric},
		{Name: "skip_count", Type: domain.ColInteger},
	},
	DateColumn: "a.faktur_date",
	SourceQuery: `
	SELECT DISTINCT ON (a.order_id)
	  a.status,
	  c.manifest_reference,
	  a.order_id,
	  c.manifest_integration_id,
	  c.external_expedition_type,
	  d.driver_name,
	  e.code AS vehicle_code,
	  a.faktur_date,
	  a.created_date AS tms_created,
	  c.created_date AS route_created,
	  a.delivery_date,
	  c.route_id,
	  a.updated_date AS tms_complete,
	  g.location_confirmation_timestamp AS location_confirmation,
	  SUM(od.quantity_faktur) AS faktur_total_quantity,
	  SUM(od.quantity_delivery) AS tms_total_quantity,
	  SUM(od.quantity_delivery) - SUM(od.quantity_unloading) AS total_return,
	  SUM(od.net_price) AS total_net_value,
	  a.skip_count
	FROM "order" AS a
	LEFT JOIN route_detail AS b ON b.order_id = a.order_id
	LEFT JOIN route AS c ON c.route_id = b.route_id
	LEFT JOIN dma_driver AS d ON d.driver_id = c.driver_id
	LEFT JOIN mst_vehicle AS e ON e.mst_vehicle_id = c.vehicle_id
	LEFT JOIN driver_tasks AS f ON f.order_id = a.order_id
	LEFT JOIN driver_task_confirmations AS g ON g.driver_task_id = f.driver_task_id
	LEFT JOIN order_detail AS od ON od.order_id = a.order_id
	{{where}}
	GROUP BY a.status, c.manifest_reference, a.order_id, c.manifest_integration_id,
	  c.external_expedition_type, d.driver_name, e.code, a.faktur_date, a.created_date,
	  c.created_date, a.delivery_date, c.route_id, a.updated_date,
	  g.location_confirmation_timestamp, a.skip_count
	ORDER BY a.order_id, a.faktur_date DESC`,
}

// factDeliverySpec describes tms_fact_delivery: one row per route stop,
// keyed by (route_id, route_detail_id, order_id).
var factDeliverySpec = &domain.TableSpec{
	Fact:       domain.FactDelivery,
	Table:      "tms_fact_delivery",
	KeyColumns: []string{"route_id", "route_detail_id", "order_id"},
	Columns: []domain.ColumnSpec{
		{Name: "route_id", Type: domain.ColText, Required: true},
		{Name: "manifest_reference", Type: domain.ColText},
		{Name: "route_detail_id", Type: domain.ColText, Required: true},
		{Name: "order_id", Type: domain.ColText, Required: true},
		{Name: "do_number", Type: domain.ColText},
		{Name: "faktur_date", Type: domain.ColDate},
		{Name: "created_date", Type: domain.ColDate},
		{Name: "created_time", Type: domain.ColTime},
		{Name: "delivery_date", Type: domain.ColDate},
		{Name: "status", Type: domain.ColText},
		{Name: "origin_name", Type: domain.ColText},
		{Name: "origin_city", Type: domain.ColText},
		{Name: "customer_id", Type: domain.ColText},
		{Name: "customer_code", Type: domain.ColText},
		{Name: "customer_name", Type: domain.ColText},
		{Name: "external_expedition_type", Type: domain.ColText},
		{Name: "plate_number", Type: domain.ColText},
		{Name: "driver_name", Type: domain.ColText},
		{Name: "driver_status", Type: domain.ColText},
		{Name: "manifest_integration_id", Type: domain.ColText},
		{Name: "complete_time", Type: domain.ColTimestamp},
		{Name: "net_price", Type: domain.ColNumeric},
		{Name: "quantity_delivery", Type: domain.ColNumeric},
		{Name: "quantity_faktur", Type: domain.ColNumeric},
		{Name: "skip_count", Type: domain.ColInteger},
	},
	DateColumn: "c.faktur_date",
	SourceQuery: `
	SELECT
	  a.route_id,
	  a.manifest_reference,
	  b.route_detail_id,
	  b.order_id,
	  c.do_number,
	  c.faktur_date,
	  a.created_date AS created_date,
	  a.created_date AS created_time,
	  c.delivery_date,
	  a.status,
	  c.origin_name,
	  c.origin_city,
	  c.customer_id,
	  e.code AS customer_code,
	  e.name AS customer_name,
	  a.external_expedition_type,
	  f.plate_number,
	  g.driver_name,
	  a.driver_status,
	  a.manifest_integration_id,
	  i.complete_time,
	  SUM(j.net_price) AS net_price,
	  SUM(j.quantity_delivery) AS quantity_delivery,
	  SUM(j.quantity_faktur) AS quantity_faktur,
	  c.skip_count
	FROM route AS a
	LEFT JOIN route_detail AS b ON b.route_id = a.route_id
	LEFT JOIN "order" AS c ON c.order_id = b.order_id
	LEFT JOIN mst_location_child AS d ON d.mst_location_child_id = c.customer_id
	LEFT JOIN mst_location_parent AS e ON e.mst_location_parent_id = d.mst_location_parent_id
	LEFT JOIN mst_vehicle AS f ON f.mst_vehicle_id = a.vehicle_id
	LEFT JOIN dma_driver AS g ON g.driver_id = a.driver_id
	LEFT JOIN driver_tasks AS i ON i.order_id = b.order_id
	LEFT JOIN order_detail AS j ON j.order_id = b.order_id
	{{where}}
	GROUP BY a.route_id, a.manifest_reference, b.route_detail_id, b.order_id, c.do_number,
	  c.faktur_date, a.created_date, c.delivery_date, a.status, c.origin_name, c.origin_city,
	  c.customer_id, e.code, e.name, a.external_expedition_type, f.plate_number, g.driver_name,
	  a.driver_status, a.manifest_integration_id, i.complete_time, c.skip_count`,
}

// Specs returns the fact table descriptors indexed by fact type.
func Specs() map[domain.FactType]*domain.TableSpec {
	return map[domain.FactType]*domain.TableSpec{
		domain.FactOrder:    factOrderSpec,
		domain.FactDelivery: factDeliverySpec,
	}
}
