package tableau

// Compiled-in method tables. Coefficients are kept as literal values (exact
// rationals where the method defines them that way, full-precision decimals
// otherwise) so tableaus are never recomputed at runtime.

// Euler is the explicit Euler method. First order, no embedded error
// estimate, so it cannot drive adaptive step sizing.
var Euler = register(MustNew("euler", 1,
	[][]float64{{}},
	[]float64{0},
	[]float64{1},
	nil,
	false, DenseLinear, nil,
))

// Midpoint is the explicit midpoint method with an embedded Euler estimate.
var Midpoint = register(MustNew("midpoint", 2,
	[][]float64{
		{},
		{1.0 / 2.0},
	},
	[]float64{0, 1.0 / 2.0},
	[]float64{0, 1},
	[]float64{-1, 1},
	false, DenseLinear, nil,
))

// Heun is Heun's second-order method with an embedded Euler estimate.
var Heun = register(MustNew("heun", 2,
	[][]float64{
		{},
		{1},
	},
	[]float64{0, 1},
	[]float64{1.0 / 2.0, 1.0 / 2.0},
	[]float64{1.0/2.0 - 1, 1.0 / 2.0},
	false, DenseHermite, nil,
))

// Bosh3 is the Bogacki--Shampine 3(2) pair. FSAL.
var Bosh3 = register(MustNew("bosh3", 3,
	[][]float64{
		{},
		{1.0 / 2.0},
		{0, 3.0 / 4.0},
		{2.0 / 9.0, 1.0 / 3.0, 4.0 / 9.0},
	},
	[]float64{0, 1.0 / 2.0, 3.0 / 4.0, 1},
	[]float64{2.0 / 9.0, 1.0 / 3.0, 4.0 / 9.0, 0},
	[]float64{
		2.0/9.0 - 7.0/24.0,
		1.0/3.0 - 1.0/4.0,
		4.0/9.0 - 1.0/3.0,
		-1.0 / 8.0,
	},
	true, DenseHermite, nil,
))

// Dopri5 is the Dormand--Prince 5(4) pair. FSAL, with fourth-order polynomial
// dense output through a reconstructed step midpoint.
var Dopri5 = register(MustNew("dopri5", 5,
	[][]float64{
		{},
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
		{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
	},
	[]float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1},
	[]float64{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0, 0},
	[]float64{
		35.0/384.0 - 1951.0/21600.0,
		0,
		500.0/1113.0 - 22642.0/50085.0,
		125.0/192.0 - 451.0/720.0,
		-2187.0/6784.0 - -12231.0/42400.0,
		11.0/84.0 - 649.0/6300.0,
		-1.0 / 60.0,
	},
	true, DenseFourthOrder,
	[]float64{
		6025192743.0 / 30085553152.0 / 2.0,
		0,
		51252292925.0 / 65400821598.0 / 2.0,
		-2691868925.0 / 45128329728.0 / 2.0,
		187940372067.0 / 1594534317056.0 / 2.0,
		-1776094331.0 / 19743644256.0 / 2.0,
		11237099.0 / 235043384.0 / 2.0,
	},
))

// Tsit5 is Tsitouras' 5(4) pair satisfying only the first column simplifying
// assumption. FSAL, with method-specific fifth-order dense output.
var Tsit5 = register(MustNew("tsit5", 5,
	[][]float64{
		{},
		{161.0 / 1000.0},
		{
			-0.008480655492356988544426874250230774675121177393430391537369234245294192976164141156943,
			0.3354806554923569885444268742502307746751211773934303915373692342452941929761641411569,
		},
		{
			2.897153057105493432130432594192938764924887287701866490314866693455023795137503079289,
			-6.359448489975074843148159912383825625952700647415626703305928850207288721235210244366,
			4.362295432869581411017727318190886861027813359713760212991062156752264926097707165077,
		},
		{
			5.325864828439256604428877920840511317836476253097040101202360397727981648835607691791,
			-11.74888356406282787774717033978577296188744178259862899288666928009020615663593781589,
			7.495539342889836208304604784564358155658679161518186721010132816213648793440552049753,
			-0.09249506636175524925650207933207191611349983406029535244034750452930469056411389539635,
		},
		{
			5.861455442946420028659251486982647890394337666164814434818157239052507339770711679748,
			-12.92096931784710929170611868178335939541780751955743459166312250439928519268343184452,
			8.159367898576158643180400794539253485181918321135053305748355423955009222648673734986,
			-0.07158497328140099722453054252582973869127213147363544882721139659546372402303777878835,
			-0.02826905039406838290900305721271224146717633626879770007617876201276764571291579142206,
		},
		{
			0.09646076681806522951816731316512876333711995238157997181903319145764851595234062815396,
			1.0 / 100.0,
			0.4798896504144995747752495322905965199130404621990332488332634944254542060153074523509,
			1.379008574103741893192274821856872770756462643091360525934940067397245698027561293331,
			-3.290069515436080679901047585711363850115683290894936158531296799594813811049925401677,
			2.324710524099773982415355918398765796109060233222962411944060046314465391054716027841,
		},
	},
	[]float64{
		0,
		161.0 / 1000.0,
		327.0 / 1000.0,
		9.0 / 10.0,
		0.9800255409045096857298102862870245954942137979563024768854764293221195950761080302604,
		1,
		1,
	},
	[]float64{
		0.09646076681806522951816731316512876333711995238157997181903319145764851595234062815396,
		1.0 / 100.0,
		0.4798896504144995747752495322905965199130404621990332488332634944254542060153074523509,
		1.379008574103741893192274821856872770756462643091360525934940067397245698027561293331,
		-3.290069515436080679901047585711363850115683290894936158531296799594813811049925401677,
		2.324710524099773982415355918398765796109060233222962411944060046314465391054716027841,
		0,
	},
	[]float64{
		0.09646076681806522951816731316512876333711995238157997181903319145764851595234062815396 -
			0.09468075576583945807478876255758922856117527357724631226139574065785592789071067303271,
		1.0/100.0 -
			0.009183565540343253096776363936645313759813746240984095238905939532922955247253608687270,
		0.4798896504144995747752495322905965199130404621990332488332634944254542060153074523509 -
			0.4877705284247615707855642599631228241516691959761363774365216240304071651579571959813,
		1.379008574103741893192274821856872770756462643091360525934940067397245698027561293331 -
			1.234297566930478985655109673884237654035539930748192848315425833500484878378061439761,
		-3.290069515436080679901047585711363850115683290894936158531296799594813811049925401677 +
			2.707712349983525454881109975059321670689605166938197378763992255714444407154902012702,
		2.324710524099773982415355918398765796109060233222962411944060046314465391054716027841 -
			1.866628418170587035753719399566211498666255505244122593996591602841258328965767580089,
		-1.0 / 66.0,
	},
	true, DenseTsit5, nil,
))
