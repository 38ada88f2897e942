package pr

// Core runtime files injected in bootstrap mode. These are the fixed
// event-dispatch shim, DOM adapter, and network tracker that generated
// snippets import.

const runtimeCoreJS = `// autometric core: event dispatch shim.
const listeners = [];

export function on(handler) {
  listeners.push(handler);
}

export function emit(name, fields) {
  const event = {
    name,
    timestamp: new Date().toISOString(),
    ...fields,
  };
  for (const handler of listeners) {
    try {
      handler(event);
    } catch (err) {
      // a broken listener must not break the page
    }
  }
  return event;
}
`

const runtimeDOMJS = `// autometric DOM adapter: wires browser interactions to core events.
import { emit } from "./core";

export function trackPageViews() {
  emit("page_view", { page_url: window.location.pathname, referrer: document.referrer });
  window.addEventListener("popstate", () => {
    emit("page_view", { page_url: window.location.pathname });
  });
}

export function trackClicks(selector) {
  document.addEventListener("click", (e) => {
    const target = e.target.closest(selector || "[data-track]");
    if (!target) return;
    emit("click", { element: target.dataset.track || target.tagName.toLowerCase(), page_url: window.location.pathname });
  });
}
`

const runtimeTrackerJS = `// autometric tracker: batches events and ships them to the ingest endpoint.
import { on } from "./core";
import { trackPageViews, trackClicks } from "./dom";

const ENDPOINT = "/api/ingest";
const FLUSH_INTERVAL_MS = 5000;

let queue = [];

function flush() {
  if (queue.length === 0) return;
  const batch = queue;
  queue = [];
  for (const event of batch) {
    navigator.sendBeacon(ENDPOINT, JSON.stringify(event));
  }
}

on((event) => {
  queue.push(event);
});

setInterval(flush, FLUSH_INTERVAL_MS);
window.addEventListener("pagehide", flush);

trackPageViews();
trackClicks();
`

const runtimeReadme = `# autometric

Generated analytics instrumentation. The tracker batches events emitted by
the core shim and delivers them to the ingest endpoint.

Files:

- ` + "`core.js`" + ` event dispatch shim
- ` + "`dom.js`" + ` DOM adapter for page views and clicks
- ` + "`tracker.js`" + ` network delivery

Import the tracker once from your application entry point:

    import "./autometric/tracker";

Do not edit these files by hand. Re-run approval to regenerate them.
`

const runtimeAdapters = `{
  "page_view": "dom",
  "click": "dom"
}
`
