package browser

// stealthScript is injected into every new document so the target site does
// not see the usual automation signals. It mirrors the flags set at launch:
// navigator.webdriver is cleared, a plausible plugin/language surface is
// exposed, and the permissions API stops reporting the automation default.
const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

	if (!window.chrome) {
		window.chrome = { runtime: {} };
	}

	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en'],
	});

	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5],
	});

	const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
	if (originalQuery) {
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: originalQuery(parameters)
		);
	}

	// Some sites probe the error stack of toString to detect proxied natives.
	const nativeToString = Function.prototype.toString;
	Function.prototype.toString = function () {
		if (this === window.navigator.permissions.query) {
			return 'function query() { [native code] }';
		}
		return nativeToString.call(this);
	};
})();`
