package server

import (
	"html/template"
	"net/http"
)

// handleDashboard serves the monitoring dashboard HTML page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <title>TrustNet - Fraud Monitoring</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1200px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #1f4068 0%, #206a5d 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        .status-bar { display: flex; justify-content: space-between; align-items: center; background: white; padding: 15px; border-radius: 8px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .status-dot { display: inline-block; width: 12px; height: 12px; border-radius: 50%; margin-right: 8px; }
        .status-ok { background-color: #28a745; }
        .status-degraded { background-color: #ffc107; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(280px, 1fr)); gap: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        .metric { display: flex; justify-content: space-between; padding: 8px 0; border-bottom: 1px solid #eee; }
        .metric:last-child { border-bottom: none; }
        .metric-label { color: #666; }
        .metric-value { font-weight: bold; color: #333; }
        .alerts-table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        .alerts-table th, .alerts-table td { text-align: left; padding: 8px; border-bottom: 1px solid #eee; }
        .alerts-table th { background-color: #f8f9fa; }
        .prob-high { color: #dc3545; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>TrustNet Fraud Monitoring</h1></div>

        <div class="status-bar">
            <div><span class="status-dot" id="model-status"></span><span id="model-status-text">Checking...</span></div>
            <div id="last-update">Last Updated: --</div>
        </div>

        <div class="grid">
            <div class="card">
                <h3>Scoring Activity</h3>
                <div class="metric"><span class="metric-label">Transactions Scored</span><span class="metric-value" id="total-predictions">0</span></div>
                <div class="metric"><span class="metric-label">Fraud Alerts</span><span class="metric-value" id="total-alerts">0</span></div>
                <div class="metric"><span class="metric-label">Fraud Rate</span><span class="metric-value" id="fraud-rate">0.00%</span></div>
            </div>

            <div class="card">
                <h3>Model</h3>
                <div class="metric"><span class="metric-label">Threshold</span><span class="metric-value" id="model-threshold">--</span></div>
                <div class="metric"><span class="metric-label">ROC AUC</span><span class="metric-value" id="model-roc-auc">--</span></div>
                <div class="metric"><span class="metric-label">Training Rows</span><span class="metric-value" id="model-rows">--</span></div>
                <div class="metric"><span class="metric-label">Trained</span><span class="metric-value" id="model-created">--</span></div>
            </div>
        </div>

        <div class="card" style="margin-top: 20px;">
            <h3>Recent Alerts</h3>
            <table class="alerts-table">
                <thead><tr><th>Time</th><th>Type</th><th>Amount</th><th>From</th><th>To</th><th>Probability</th></tr></thead>
                <tbody id="alerts-table-body">
                    <tr><td colspan="6" style="text-align: center; color: #666;">No alerts</td></tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        function refresh() {
            fetch('/dashboard-data').then(r => r.json()).then(updateDashboard).catch(() => {});
        }

        const ws = new WebSocket('ws://' + location.host + '/ws');
        ws.onmessage = refresh;
        ws.onclose = function() { setTimeout(() => location.reload(), 5000); };

        function updateDashboard(data) {
            document.getElementById('last-update').textContent = 'Last Updated: ' + new Date().toLocaleTimeString();

            const dot = document.getElementById('model-status');
            const text = document.getElementById('model-status-text');
            if (data.model.degraded) {
                dot.className = 'status-dot status-degraded';
                text.textContent = 'Degraded Mode (no model loaded)';
            } else {
                dot.className = 'status-dot status-ok';
                text.textContent = 'Model Active';
            }

            document.getElementById('total-predictions').textContent = data.stats.total_predictions;
            document.getElementById('total-alerts').textContent = data.stats.total_alerts;
            document.getElementById('fraud-rate').textContent = (data.stats.fraud_rate * 100).toFixed(2) + '%';

            document.getElementById('model-threshold').textContent = data.model.threshold.toFixed(3);
            document.getElementById('model-roc-auc').textContent = data.model.roc_auc ? data.model.roc_auc.toFixed(3) : '--';
            document.getElementById('model-rows').textContent = data.model.training_rows || '--';
            document.getElementById('model-created').textContent = data.model.created_at ? new Date(data.model.created_at).toLocaleString() : '--';

            const tbody = document.getElementById('alerts-table-body');
            tbody.innerHTML = '';
            if (!data.alerts.length) {
                tbody.innerHTML = '<tr><td colspan="6" style="text-align: center; color: #666;">No alerts</td></tr>';
                return;
            }
            for (const a of data.alerts) {
                const row = document.createElement('tr');
                row.innerHTML = '<td>' + new Date(a.timestamp).toLocaleTimeString() + '</td>' +
                    '<td>' + a.type + '</td>' +
                    '<td>' + a.amount.toFixed(2) + '</td>' +
                    '<td>' + a.nameOrig + '</td>' +
                    '<td>' + a.nameDest + '</td>' +
                    '<td class="prob-high">' + (a.fraud_probability * 100).toFixed(1) + '%</td>';
                tbody.appendChild(row);
            }
        }

        refresh();
        setInterval(refresh, 10000);
    </script>
</body>
</html>
	`

	t, err := template.New("dashboard").Parse(tmpl)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}
